package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pricelab/cfb-market/internal/domain/game"
	"github.com/pricelab/cfb-market/internal/domain/market"
	"github.com/pricelab/cfb-market/internal/platform/logging"
)

func floatPtr(v float64) *float64 { return &v }

var testKickoff = time.Date(2024, 10, 12, 19, 30, 0, 0, time.UTC)

func spreadQuote(book string, value float64, observedAt time.Time) market.RawLineQuote {
	return market.RawLineQuote{
		GameID:     "g1",
		Market:     market.TypeSpread,
		Book:       book,
		Value:      floatPtr(value),
		ObservedAt: observedAt,
		Source:     "gridstats",
	}
}

func TestResolveMarketSpreadMedianScenario(t *testing.T) {
	t.Parallel()

	g := game.Game{ID: "g1", KickoffAt: testKickoff}
	quotes := []market.RawLineQuote{
		spreadQuote("pinnacle", -3.5, testKickoff.Add(-30*time.Minute)),
		spreadQuote("circa", -3, testKickoff.Add(-20*time.Minute)),
		spreadQuote("westgate", -4, testKickoff.Add(-10*time.Minute)),
	}

	line := resolveMarket(g, market.TypeSpread, quotes, "v1", time.Now())
	if line.Value == nil {
		t.Fatal("consensus is nil")
	}
	if *line.Value != -3.5 {
		t.Fatalf("consensus = %v, want -3.5", *line.Value)
	}
	if line.BookCount != 3 {
		t.Fatalf("book count = %d, want 3", line.BookCount)
	}
	if line.FavoredSide != market.SideHome {
		t.Fatalf("favored = %q, want home", line.FavoredSide)
	}
	if line.Window != market.WindowPreKick {
		t.Fatalf("window = %q, want prekick", line.Window)
	}
	if line.BookCount > line.QuoteCount {
		t.Fatalf("book count %d exceeds quote count %d", line.BookCount, line.QuoteCount)
	}
}

func TestResolveMarketSpreadFavoriteCentricNonPositive(t *testing.T) {
	t.Parallel()

	// Away favorite: home-referenced values are positive.
	g := game.Game{ID: "g1", KickoffAt: testKickoff}
	quotes := []market.RawLineQuote{
		spreadQuote("pinnacle", 6.5, testKickoff.Add(-30*time.Minute)),
		spreadQuote("circa", 7, testKickoff.Add(-20*time.Minute)),
		spreadQuote("westgate", 6.5, testKickoff.Add(-5*time.Minute)),
	}

	line := resolveMarket(g, market.TypeSpread, quotes, "v1", time.Now())
	if line.Value == nil || *line.Value > 0 {
		t.Fatalf("favorite-centric consensus must be <= 0, got %v", line.Value)
	}
	if *line.Value != -6.5 {
		t.Fatalf("consensus = %v, want -6.5", *line.Value)
	}
	if line.FavoredSide != market.SideAway {
		t.Fatalf("favored = %q, want away", line.FavoredSide)
	}
}

func TestResolveMarketPerBookFirstOccurrenceWins(t *testing.T) {
	t.Parallel()

	// One book repeating a number must not outvote the rest.
	g := game.Game{ID: "g1", KickoffAt: testKickoff}
	quotes := []market.RawLineQuote{
		spreadQuote("loudbook", -10, testKickoff.Add(-50*time.Minute)),
		spreadQuote("loudbook", -10, testKickoff.Add(-40*time.Minute)),
		spreadQuote("loudbook", -9.5, testKickoff.Add(-30*time.Minute)),
		spreadQuote("pinnacle", -3, testKickoff.Add(-20*time.Minute)),
		spreadQuote("circa", -3.5, testKickoff.Add(-10*time.Minute)),
	}

	line := resolveMarket(g, market.TypeSpread, quotes, "v1", time.Now())
	if line.BookCount != 3 {
		t.Fatalf("book count = %d, want 3", line.BookCount)
	}
	if line.Value == nil || *line.Value != -3.5 {
		t.Fatalf("consensus = %v, want -3.5", line.Value)
	}
}

func TestResolveMarketFallsBackToFullHistory(t *testing.T) {
	t.Parallel()

	g := game.Game{ID: "g1", KickoffAt: testKickoff}
	quotes := []market.RawLineQuote{
		spreadQuote("pinnacle", -2.5, testKickoff.Add(-26*time.Hour)),
		spreadQuote("circa", -3, testKickoff.Add(-30*time.Hour)),
	}

	line := resolveMarket(g, market.TypeSpread, quotes, "v1", time.Now())
	if line.Window != market.WindowFull {
		t.Fatalf("window = %q, want full fallback", line.Window)
	}
	if line.Value == nil {
		t.Fatal("expected priced line from full history")
	}
}

func TestResolveMarketNullWhenZeroBooksSurvive(t *testing.T) {
	t.Parallel()

	g := game.Game{ID: "g1", KickoffAt: testKickoff}
	quotes := []market.RawLineQuote{
		// Both quotes are moneyline-shaped garbage in a spread field.
		spreadQuote("pinnacle", -110, testKickoff.Add(-30*time.Minute)),
		spreadQuote("circa", 250, testKickoff.Add(-20*time.Minute)),
	}

	line := resolveMarket(g, market.TypeSpread, quotes, "v1", time.Now())
	if line.Value != nil {
		t.Fatalf("consensus = %v, want nil for zero surviving books", *line.Value)
	}
	if line.ExcludedCount != 2 {
		t.Fatalf("excluded = %d, want 2", line.ExcludedCount)
	}
	if line.BookCount != 0 {
		t.Fatalf("book count = %d, want 0", line.BookCount)
	}
}

func TestResolveMarketMoneylineKeepsBothSidesPerBook(t *testing.T) {
	t.Parallel()

	g := game.Game{ID: "g1", KickoffAt: testKickoff}
	mlQuote := func(book string, value float64, offset time.Duration) market.RawLineQuote {
		return market.RawLineQuote{
			GameID:     "g1",
			Market:     market.TypeMoneyline,
			Book:       book,
			Value:      floatPtr(value),
			ObservedAt: testKickoff.Add(offset),
		}
	}
	quotes := []market.RawLineQuote{
		mlQuote("pinnacle", -150, -30*time.Minute),
		mlQuote("pinnacle", 130, -30*time.Minute),
		mlQuote("pinnacle", -155, -10*time.Minute), // dup favorite side, dropped
		mlQuote("circa", -145, -20*time.Minute),
	}

	line := resolveMarket(g, market.TypeMoneyline, quotes, "v1", time.Now())
	if line.BookCount != 2 {
		t.Fatalf("book count = %d, want 2", line.BookCount)
	}
	if line.Value == nil {
		t.Fatal("expected priced moneyline")
	}
}

type stubGameRepo struct {
	games []game.Game
}

func (s *stubGameRepo) ListBySeason(_ context.Context, season int) ([]game.Game, error) {
	out := make([]game.Game, 0, len(s.games))
	for _, g := range s.games {
		if g.Season == season {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *stubGameRepo) ListBySeasonWeeks(ctx context.Context, season int, weeks []int) ([]game.Game, error) {
	allowed := make(map[int]struct{}, len(weeks))
	for _, w := range weeks {
		allowed[w] = struct{}{}
	}
	all, _ := s.ListBySeason(ctx, season)
	out := make([]game.Game, 0, len(all))
	for _, g := range all {
		if _, ok := allowed[g.Week]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *stubGameRepo) ListCompletedByTeam(_ context.Context, season int, teamID string) ([]game.Game, error) {
	out := make([]game.Game, 0)
	for _, g := range s.games {
		if g.Season == season && g.Completed() && (g.HomeTeamID == teamID || g.AwayTeamID == teamID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *stubGameRepo) GetByID(_ context.Context, id string) (game.Game, bool, error) {
	for _, g := range s.games {
		if g.ID == id {
			return g, true, nil
		}
	}
	return game.Game{}, false, nil
}

func (s *stubGameRepo) UpsertGames(_ context.Context, items []game.Game) error {
	s.games = append(s.games, items...)
	return nil
}

type stubMarketRepo struct {
	mu        sync.Mutex
	quotes    map[string][]market.RawLineQuote
	consensus []market.ConsensusLine
}

func (s *stubMarketRepo) ListQuotesByGame(_ context.Context, gameID string) ([]market.RawLineQuote, error) {
	return s.quotes[gameID], nil
}

func (s *stubMarketRepo) InsertQuotes(_ context.Context, items []market.RawLineQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quotes == nil {
		s.quotes = make(map[string][]market.RawLineQuote)
	}
	for _, q := range items {
		s.quotes[q.GameID] = append(s.quotes[q.GameID], q)
	}
	return nil
}

func (s *stubMarketRepo) GetConsensus(_ context.Context, gameID string, mt market.Type, version string) (market.ConsensusLine, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range s.consensus {
		if line.GameID == gameID && line.Market == mt && line.Version == version {
			return line, true, nil
		}
	}
	return market.ConsensusLine{}, false, nil
}

func (s *stubMarketRepo) ListConsensusBySeason(_ context.Context, _ int, mt market.Type, version string) ([]market.ConsensusLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]market.ConsensusLine, 0, len(s.consensus))
	for _, line := range s.consensus {
		if line.Market == mt && line.Version == version {
			out = append(out, line)
		}
	}
	return out, nil
}

func (s *stubMarketRepo) UpsertConsensus(_ context.Context, line market.ConsensusLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.consensus {
		if existing.GameID == line.GameID && existing.Market == line.Market && existing.Version == line.Version {
			s.consensus[i] = line
			return nil
		}
	}
	s.consensus = append(s.consensus, line)
	return nil
}

func TestResolveSeasonSummaryCounts(t *testing.T) {
	t.Parallel()

	games := &stubGameRepo{games: []game.Game{
		{ID: "g1", Season: 2024, Week: 6, KickoffAt: testKickoff},
		{ID: "g2", Season: 2024, Week: 6, KickoffAt: testKickoff},
	}}
	markets := &stubMarketRepo{quotes: map[string][]market.RawLineQuote{
		"g1": {
			spreadQuote("pinnacle", -3.5, testKickoff.Add(-30*time.Minute)),
			spreadQuote("circa", -3, testKickoff.Add(-20*time.Minute)),
		},
		"g2": {
			// Unusable quote only: leaves the game unpriced.
			spreadQuote("pinnacle", -110, testKickoff.Add(-30*time.Minute)),
		},
	}}

	svc := NewConsensusService(games, markets, logging.NewNop())
	result, err := svc.ResolveSeason(context.Background(), ResolveSeasonInput{Season: 2024, Version: "v1"})
	if err != nil {
		t.Fatalf("resolve season: %v", err)
	}

	if result.GameCount != 2 {
		t.Fatalf("game count = %d, want 2", result.GameCount)
	}
	if result.PricedCount != 1 || result.UnpricedCount != 1 || result.FailedCount != 0 {
		t.Fatalf("counts = %d/%d/%d, want 1/1/0", result.PricedCount, result.UnpricedCount, result.FailedCount)
	}
	if len(markets.consensus) != 2 {
		t.Fatalf("persisted lines = %d, want 2", len(markets.consensus))
	}
}

func TestResolveSeasonDryRunSkipsWrites(t *testing.T) {
	t.Parallel()

	games := &stubGameRepo{games: []game.Game{{ID: "g1", Season: 2024, Week: 6, KickoffAt: testKickoff}}}
	markets := &stubMarketRepo{quotes: map[string][]market.RawLineQuote{
		"g1": {spreadQuote("pinnacle", -3.5, testKickoff.Add(-30*time.Minute))},
	}}

	svc := NewConsensusService(games, markets, logging.NewNop())
	result, err := svc.ResolveSeason(context.Background(), ResolveSeasonInput{Season: 2024, Version: "v1", DryRun: true})
	if err != nil {
		t.Fatalf("resolve season: %v", err)
	}
	if result.PricedCount != 1 {
		t.Fatalf("priced = %d, want 1", result.PricedCount)
	}
	if len(markets.consensus) != 0 {
		t.Fatalf("dry run persisted %d lines", len(markets.consensus))
	}
}

func TestResolveSeasonRejectsMissingVersion(t *testing.T) {
	t.Parallel()

	svc := NewConsensusService(&stubGameRepo{}, &stubMarketRepo{}, logging.NewNop())
	if _, err := svc.ResolveSeason(context.Background(), ResolveSeasonInput{Season: 2024}); err == nil {
		t.Fatal("expected validation error for missing version")
	}
}

func TestResolveSeasonIdempotentRerun(t *testing.T) {
	t.Parallel()

	games := &stubGameRepo{games: []game.Game{{ID: "g1", Season: 2024, Week: 6, KickoffAt: testKickoff}}}
	markets := &stubMarketRepo{quotes: map[string][]market.RawLineQuote{
		"g1": {
			spreadQuote("pinnacle", -3.5, testKickoff.Add(-30*time.Minute)),
			spreadQuote("circa", -3, testKickoff.Add(-20*time.Minute)),
		},
	}}

	svc := NewConsensusService(games, markets, logging.NewNop())
	for i := 0; i < 2; i++ {
		if _, err := svc.ResolveSeason(context.Background(), ResolveSeasonInput{Season: 2024, Version: "v1"}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if len(markets.consensus) != 1 {
		t.Fatalf("persisted lines = %d, want 1 after idempotent rerun", len(markets.consensus))
	}
	if markets.consensus[0].Value == nil || *markets.consensus[0].Value != -3.25 {
		t.Fatalf("consensus = %v, want -3.25", markets.consensus[0].Value)
	}
}
