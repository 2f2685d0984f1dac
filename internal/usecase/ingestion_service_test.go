package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pricelab/cfb-market/internal/platform/logging"
)

type stubProvider struct {
	teams  []ExternalTeam
	talent []ExternalTalent
	games  []ExternalGame
	lines  []ExternalGameLines
	stats  []ExternalTeamGameStats

	gamesErr error
}

func (s *stubProvider) FetchTeams(_ context.Context, _ int) ([]ExternalTeam, error) {
	return s.teams, nil
}

func (s *stubProvider) FetchTalent(_ context.Context, _ int) ([]ExternalTalent, error) {
	return s.talent, nil
}

func (s *stubProvider) FetchGames(_ context.Context, _ int, _ []int) ([]ExternalGame, error) {
	return s.games, s.gamesErr
}

func (s *stubProvider) FetchGameLines(_ context.Context, _ int, _ []int) ([]ExternalGameLines, error) {
	return s.lines, nil
}

func (s *stubProvider) FetchAdvancedStats(_ context.Context, _ int, _ []int) ([]ExternalTeamGameStats, error) {
	return s.stats, nil
}

func ingestFixtureProvider() *stubProvider {
	kickoff := time.Date(2024, 9, 7, 19, 30, 0, 0, time.UTC)
	spread := -6.5
	total := 54.5

	return &stubProvider{
		teams: []ExternalTeam{
			{ProviderID: 101, School: "Georgia", Conference: "SEC", Classification: "fbs"},
			{ProviderID: 102, School: "Alabama", Conference: "SEC", Classification: "fbs"},
		},
		talent: []ExternalTalent{{School: "georgia", Talent: 978.4}},
		games: []ExternalGame{
			{
				ProviderID: 9001, Season: 2024, Week: 2, SeasonType: "regular",
				StartAt: kickoff, HomeSchool: "Georgia", AwaySchool: "Alabama",
				HomeClassification: "fbs", AwayClassification: "fbs", Status: "scheduled",
			},
			{
				ProviderID: 9002, Season: 2024, Week: 2, SeasonType: "regular",
				StartAt: kickoff, HomeSchool: "Georgia", AwaySchool: "Slippery Rock",
				Status: "scheduled",
			},
		},
		lines: []ExternalGameLines{
			{
				ProviderGameID: 9001,
				Quotes: []ExternalLineQuote{
					{Book: "pinnacle", Market: "spread", Closing: &spread, ObservedAt: kickoff.Add(-30 * time.Minute)},
					{Book: "circa", Market: "total", Value: &total, ObservedAt: kickoff.Add(-20 * time.Minute)},
					{Book: "pinnacle", Market: "props", Value: &total, ObservedAt: kickoff.Add(-10 * time.Minute)},
				},
			},
			{
				ProviderGameID: 9002,
				Quotes: []ExternalLineQuote{
					{Book: "pinnacle", Market: "spread", Value: &spread, ObservedAt: kickoff},
				},
			},
		},
		stats: []ExternalTeamGameStats{
			{ProviderGameID: 9001, School: "Georgia", OpponentSchool: "Alabama", Season: 2024, Week: 2, OffEPA: &spread},
			{ProviderGameID: 9001, School: "Alabama", OpponentSchool: "Georgia", Season: 2024, Week: 2, OffEPA: &total},
			{ProviderGameID: 9001, School: "Slippery Rock", OpponentSchool: "Georgia", Season: 2024, Week: 2},
		},
	}
}

func TestIngestSeasonMapsAndCountsUnmappable(t *testing.T) {
	t.Parallel()

	teams := &stubTeamRepo{}
	games := &stubGameRepo{}
	markets := &stubMarketRepo{}
	effRepo := &stubEfficiencyRepo{}

	svc := NewIngestionService(ingestFixtureProvider(), teams, games, markets, effRepo, logging.NewNop())
	result, err := svc.IngestSeason(context.Background(), IngestSeasonInput{Season: 2024, Weeks: []int{2}})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if result.TeamCount != 2 {
		t.Fatalf("teams = %d, want 2", result.TeamCount)
	}
	if result.GameCount != 1 || result.SkippedGames != 1 {
		t.Fatalf("games = %d skipped = %d, want 1/1", result.GameCount, result.SkippedGames)
	}
	// Two valid quotes; one unknown market plus the skipped game's quote.
	if result.QuoteCount != 2 || result.SkippedQuotes != 2 {
		t.Fatalf("quotes = %d skipped = %d, want 2/2", result.QuoteCount, result.SkippedQuotes)
	}
	if result.StatCount != 2 || result.SkippedStats != 1 {
		t.Fatalf("stats = %d skipped = %d, want 2/1", result.StatCount, result.SkippedStats)
	}
	if len(result.UnmappedSchools) != 1 || result.UnmappedSchools[0] != "Slippery Rock" {
		t.Fatalf("unmapped = %v, want [Slippery Rock]", result.UnmappedSchools)
	}

	georgia, found, _ := teams.GetByProviderName(context.Background(), "Georgia")
	if !found {
		t.Fatal("georgia not persisted")
	}
	if georgia.Talent == nil || *georgia.Talent != 978.4 {
		t.Fatalf("georgia talent = %v, want 978.4 merged from talent feed", georgia.Talent)
	}

	stored, found, _ := games.GetByID(context.Background(), "9001")
	if !found {
		t.Fatal("game 9001 not persisted")
	}
	if stored.HomeTeamID != "101" || stored.AwayTeamID != "102" {
		t.Fatalf("game teams = %s/%s, want 101/102", stored.HomeTeamID, stored.AwayTeamID)
	}

	quotes, _ := markets.ListQuotesByGame(context.Background(), "9001")
	if len(quotes) != 2 {
		t.Fatalf("stored quotes = %d, want 2", len(quotes))
	}
	for _, q := range quotes {
		if q.Source != quoteSourceGridStats {
			t.Fatalf("quote source = %s, want %s", q.Source, quoteSourceGridStats)
		}
	}

	effRows, _ := effRepo.ListBySeason(context.Background(), 2024)
	if len(effRows) != 2 {
		t.Fatalf("efficiency rows = %d, want 2", len(effRows))
	}
	if effRows[0].TeamID != "101" || effRows[0].OpponentID != "102" {
		t.Fatalf("efficiency mapping = %s vs %s, want 101 vs 102", effRows[0].TeamID, effRows[0].OpponentID)
	}
}

func TestIngestSeasonDryRunCountsWithoutWrites(t *testing.T) {
	t.Parallel()

	teams := &stubTeamRepo{}
	games := &stubGameRepo{}
	markets := &stubMarketRepo{}
	effRepo := &stubEfficiencyRepo{}

	svc := NewIngestionService(ingestFixtureProvider(), teams, games, markets, effRepo, logging.NewNop())
	result, err := svc.IngestSeason(context.Background(), IngestSeasonInput{Season: 2024, DryRun: true})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if result.TeamCount != 2 || result.GameCount != 1 || result.QuoteCount != 2 || result.StatCount != 2 {
		t.Fatalf("dry-run counts = %+v, want same totals as a live run", result)
	}
	if len(teams.teams) != 0 || len(games.games) != 0 || len(effRepo.rows) != 0 {
		t.Fatal("dry run persisted rows")
	}
}

func TestIngestSeasonProviderFailureIsFatal(t *testing.T) {
	t.Parallel()

	provider := ingestFixtureProvider()
	provider.gamesErr = errors.New("upstream 503")

	svc := NewIngestionService(provider, &stubTeamRepo{}, &stubGameRepo{}, &stubMarketRepo{}, &stubEfficiencyRepo{}, logging.NewNop())
	_, err := svc.IngestSeason(context.Background(), IngestSeasonInput{Season: 2024})
	if err == nil {
		t.Fatal("expected provider failure to abort the run")
	}
}

func TestIngestSeasonRejectsOutOfRangeWeek(t *testing.T) {
	t.Parallel()

	svc := NewIngestionService(ingestFixtureProvider(), &stubTeamRepo{}, &stubGameRepo{}, &stubMarketRepo{}, &stubEfficiencyRepo{}, logging.NewNop())
	_, err := svc.IngestSeason(context.Background(), IngestSeasonInput{Season: 2024, Weeks: []int{25}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
