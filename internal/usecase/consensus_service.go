package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/pricelab/cfb-market/internal/domain/game"
	"github.com/pricelab/cfb-market/internal/domain/market"
	"github.com/pricelab/cfb-market/internal/platform/logging"
)

const (
	preKickLead = 60 * time.Minute
	preKickLag  = 5 * time.Minute

	consensusStatusPriced   = "priced"
	consensusStatusUnpriced = "unpriced"
	consensusStatusFailed   = "failed"
)

type ConsensusService struct {
	games   game.Repository
	markets market.Repository
	logger  *logging.Logger
	now     func() time.Time
}

func NewConsensusService(games game.Repository, markets market.Repository, logger *logging.Logger) *ConsensusService {
	return &ConsensusService{
		games:   games,
		markets: markets,
		logger:  logger,
		now:     time.Now,
	}
}

type ResolveSeasonInput struct {
	Season     int    `validate:"required,gte=1900"`
	Weeks      []int  `validate:"omitempty,dive,gte=1"`
	Version    string `validate:"required"`
	MaxWorkers int    `validate:"omitempty,gte=1"`
	// DryRun computes consensus values without persisting them.
	DryRun bool
}

type ResolveSeasonResult struct {
	GameCount     int                  `json:"game_count"`
	PricedCount   int                  `json:"priced_count"`
	UnpricedCount int                  `json:"unpriced_count"`
	FailedCount   int                  `json:"failed_count"`
	WorkerCount   int                  `json:"worker_count"`
	Rows          []ConsensusRowResult `json:"rows"`
}

type ConsensusRowResult struct {
	GameID    string   `json:"game_id"`
	Market    string   `json:"market"`
	Status    string   `json:"status"`
	Value     *float64 `json:"value,omitempty"`
	Favored   string   `json:"favored,omitempty"`
	Window    string   `json:"window,omitempty"`
	BookCount int      `json:"book_count"`
	Message   string   `json:"message,omitempty"`
}

// ResolveSeason recomputes consensus lines for every game in scope under one
// version. Games that fail to resolve are counted and reported, never fatal.
func (s *ConsensusService) ResolveSeason(ctx context.Context, input ResolveSeasonInput) (ResolveSeasonResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ConsensusService.ResolveSeason")
	defer span.End()

	if s.games == nil || s.markets == nil {
		return ResolveSeasonResult{}, fmt.Errorf("%w: consensus service is not fully configured", ErrDependencyUnavailable)
	}
	if err := validateBatchInput(input); err != nil {
		return ResolveSeasonResult{}, err
	}

	games, err := s.listGames(ctx, input.Season, input.Weeks)
	if err != nil {
		return ResolveSeasonResult{}, fmt.Errorf("list games season=%d: %w", input.Season, err)
	}

	workerCount := input.MaxWorkers
	if workerCount <= 0 {
		workerCount = 4
	}
	if workerCount > len(games) && len(games) > 0 {
		workerCount = len(games)
	}

	result := ResolveSeasonResult{
		GameCount:   len(games),
		WorkerCount: workerCount,
	}
	if len(games) == 0 {
		return result, nil
	}

	resolvedAt := s.now()
	tasks := pool.NewWithResults[[]ConsensusRowResult]().WithMaxGoroutines(workerCount)
	for _, g := range games {
		g := g
		tasks.Go(func() []ConsensusRowResult {
			return s.resolveGame(ctx, g, input.Version, resolvedAt, input.DryRun)
		})
	}
	for _, rows := range tasks.Wait() {
		result.Rows = append(result.Rows, rows...)
	}

	sort.SliceStable(result.Rows, func(i, j int) bool {
		if result.Rows[i].GameID != result.Rows[j].GameID {
			return result.Rows[i].GameID < result.Rows[j].GameID
		}
		return result.Rows[i].Market < result.Rows[j].Market
	})
	for _, row := range result.Rows {
		switch row.Status {
		case consensusStatusPriced:
			result.PricedCount++
		case consensusStatusUnpriced:
			result.UnpricedCount++
		default:
			result.FailedCount++
		}
	}
	return result, nil
}

func (s *ConsensusService) listGames(ctx context.Context, season int, weeks []int) ([]game.Game, error) {
	if len(weeks) == 0 {
		return s.games.ListBySeason(ctx, season)
	}
	return s.games.ListBySeasonWeeks(ctx, season, weeks)
}

func (s *ConsensusService) resolveGame(ctx context.Context, g game.Game, version string, resolvedAt time.Time, dryRun bool) []ConsensusRowResult {
	quotes, err := s.markets.ListQuotesByGame(ctx, g.ID)
	if err != nil {
		return []ConsensusRowResult{{
			GameID:  g.ID,
			Status:  consensusStatusFailed,
			Message: fmt.Sprintf("list quotes: %v", err),
		}}
	}

	lines := resolveGameMarkets(g, quotes, version, resolvedAt)
	rows := make([]ConsensusRowResult, 0, len(lines))
	for _, line := range lines {
		row := ConsensusRowResult{
			GameID:    line.GameID,
			Market:    string(line.Market),
			Value:     line.Value,
			Favored:   line.FavoredSide,
			Window:    line.Window,
			BookCount: line.BookCount,
			Status:    consensusStatusPriced,
		}
		if line.Value == nil {
			row.Status = consensusStatusUnpriced
			row.Message = "zero books survived deduplication"
		}

		if !dryRun {
			if err := s.markets.UpsertConsensus(ctx, line); err != nil {
				row.Status = consensusStatusFailed
				row.Message = fmt.Sprintf("upsert consensus: %v", err)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// resolveGameMarkets computes one consensus line per market type that has at
// least one raw quote for the game.
func resolveGameMarkets(g game.Game, quotes []market.RawLineQuote, version string, resolvedAt time.Time) []market.ConsensusLine {
	byMarket := make(map[market.Type][]market.RawLineQuote)
	for _, q := range quotes {
		if !q.Market.Valid() {
			continue
		}
		byMarket[q.Market] = append(byMarket[q.Market], q)
	}

	order := []market.Type{market.TypeSpread, market.TypeTotal, market.TypeMoneyline}
	lines := make([]market.ConsensusLine, 0, len(byMarket))
	for _, mt := range order {
		group, ok := byMarket[mt]
		if !ok {
			continue
		}
		lines = append(lines, resolveMarket(g, mt, group, version, resolvedAt))
	}
	return lines
}

func resolveMarket(g game.Game, mt market.Type, quotes []market.RawLineQuote, version string, resolvedAt time.Time) market.ConsensusLine {
	line := market.ConsensusLine{
		GameID:     g.ID,
		Market:     mt,
		Version:    version,
		QuoteCount: len(quotes),
		ResolvedAt: resolvedAt,
	}

	windowed, window := selectWindow(quotes, g.KickoffAt)
	line.Window = window

	sort.SliceStable(windowed, func(i, j int) bool {
		return windowed[i].ObservedAt.Before(windowed[j].ObservedAt)
	})

	var values []float64
	var books int
	var excluded int
	switch mt {
	case market.TypeSpread, market.TypeTotal:
		values, books, excluded = dedupeHalfPoint(windowed)
	case market.TypeMoneyline:
		values, books, excluded = dedupeMoneylines(windowed)
	}
	line.BookCount = books
	line.ExcludedCount = excluded

	if len(values) == 0 {
		// Null consensus: the game/market stays unpriced under this version.
		return line
	}

	if mt == market.TypeSpread {
		// Favorite-centric form: every contributing value becomes <= 0 and
		// the favored side is recorded separately.
		negatives := 0
		for _, v := range values {
			if v <= 0 {
				negatives++
			}
		}
		line.FavoredSide = market.SideAway
		if negatives*2 >= len(values) {
			line.FavoredSide = market.SideHome
		}
		for i, v := range values {
			values[i] = -math.Abs(v)
		}
	}

	consensus := median(values)
	line.Value = &consensus
	return line
}

// selectWindow prefers the pre-kick window and falls back to the full quote
// history when nothing was observed close to kickoff.
func selectWindow(quotes []market.RawLineQuote, kickoff time.Time) ([]market.RawLineQuote, string) {
	if kickoff.IsZero() {
		return append([]market.RawLineQuote(nil), quotes...), market.WindowFull
	}

	from := kickoff.Add(-preKickLead)
	to := kickoff.Add(preKickLag)
	inWindow := make([]market.RawLineQuote, 0, len(quotes))
	for _, q := range quotes {
		if q.ObservedAt.Before(from) || q.ObservedAt.After(to) {
			continue
		}
		inWindow = append(inWindow, q)
	}
	if len(inWindow) == 0 {
		return append([]market.RawLineQuote(nil), quotes...), market.WindowFull
	}
	return inWindow, market.WindowPreKick
}

// dedupeHalfPoint keeps one half-point-rounded value per book, first
// occurrence wins. Used for spreads and totals.
func dedupeHalfPoint(quotes []market.RawLineQuote) (values []float64, books int, excluded int) {
	seen := make(map[string]struct{})
	for _, q := range quotes {
		v, reject := market.Normalize(q)
		if reject != market.RejectNone {
			excluded++
			continue
		}
		if _, ok := seen[q.Book]; ok {
			continue
		}
		seen[q.Book] = struct{}{}
		values = append(values, market.RoundHalf(v))
	}
	return values, len(seen), excluded
}

// dedupeMoneylines keeps one favorite-side and one dog-side price per book,
// each rounded to the nearest nickel.
func dedupeMoneylines(quotes []market.RawLineQuote) (values []float64, books int, excluded int) {
	type bookSide struct {
		book string
		dog  bool
	}
	seen := make(map[bookSide]struct{})
	bookSet := make(map[string]struct{})
	for _, q := range quotes {
		v, reject := market.Normalize(q)
		if reject != market.RejectNone {
			excluded++
			continue
		}
		key := bookSide{book: q.Book, dog: v > 0}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		bookSet[q.Book] = struct{}{}
		values = append(values, market.RoundNickel(v))
	}
	return values, len(bookSet), excluded
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
