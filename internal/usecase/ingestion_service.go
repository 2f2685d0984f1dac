package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/pricelab/cfb-market/internal/domain/efficiency"
	"github.com/pricelab/cfb-market/internal/domain/game"
	"github.com/pricelab/cfb-market/internal/domain/market"
	"github.com/pricelab/cfb-market/internal/domain/team"
	"github.com/pricelab/cfb-market/internal/platform/logging"
)

const quoteSourceGridStats = "gridstats"

// MarketDataProvider is the upstream feed the ingestion pass reads from. The
// concrete client lives in external/gridstats.
type MarketDataProvider interface {
	FetchTeams(ctx context.Context, season int) ([]ExternalTeam, error)
	FetchTalent(ctx context.Context, season int) ([]ExternalTalent, error)
	FetchGames(ctx context.Context, season int, weeks []int) ([]ExternalGame, error)
	FetchGameLines(ctx context.Context, season int, weeks []int) ([]ExternalGameLines, error)
	FetchAdvancedStats(ctx context.Context, season int, weeks []int) ([]ExternalTeamGameStats, error)
}

type ExternalTeam struct {
	ProviderID          int64
	School              string
	Conference          string
	Classification      string
	ReturningProduction *float64
}

type ExternalTalent struct {
	School string
	Talent float64
}

type ExternalGame struct {
	ProviderID         int64
	Season             int
	Week               int
	SeasonType         string
	StartAt            time.Time
	NeutralSite        bool
	ConferenceGame     bool
	HomeSchool         string
	AwaySchool         string
	HomeClassification string
	AwayClassification string
	HomePoints         *int
	AwayPoints         *int
	Status             string
}

type ExternalGameLines struct {
	ProviderGameID int64
	Quotes         []ExternalLineQuote
}

type ExternalLineQuote struct {
	Book       string
	Market     string
	Value      *float64
	Closing    *float64
	ObservedAt time.Time
}

type ExternalTeamGameStats struct {
	ProviderGameID int64
	School         string
	OpponentSchool string
	Season         int
	Week           int

	OffEPA           *float64
	DefEPA           *float64
	OffSuccessRate   *float64
	DefSuccessRate   *float64
	OffExplosiveness *float64
	DefExplosiveness *float64
	OffPointsPerOpp  *float64
	DefPointsPerOpp  *float64
	Havoc            *float64
	HavocAllowed     *float64
}

type IngestionService struct {
	provider   MarketDataProvider
	teams      team.Repository
	games      game.Repository
	markets    market.Repository
	efficiency efficiency.Repository
	logger     *logging.Logger
}

func NewIngestionService(
	provider MarketDataProvider,
	teams team.Repository,
	games game.Repository,
	markets market.Repository,
	efficiencyRepo efficiency.Repository,
	logger *logging.Logger,
) *IngestionService {
	return &IngestionService{
		provider:   provider,
		teams:      teams,
		games:      games,
		markets:    markets,
		efficiency: efficiencyRepo,
		logger:     logger,
	}
}

type IngestSeasonInput struct {
	Season int   `validate:"required,gte=1900"`
	Weeks  []int `validate:"omitempty,dive,gte=0,lte=20"`
	DryRun bool
}

type IngestSeasonResult struct {
	TeamCount  int `json:"team_count"`
	GameCount  int `json:"game_count"`
	QuoteCount int `json:"quote_count"`
	StatCount  int `json:"stat_count"`

	SkippedGames  int `json:"skipped_games"`
	SkippedQuotes int `json:"skipped_quotes"`
	SkippedStats  int `json:"skipped_stats"`

	// UnmappedSchools lists provider school names with no canonical team,
	// deduplicated, so the alias table can be extended. Never fatal.
	UnmappedSchools []string `json:"unmapped_schools,omitempty"`
}

// IngestSeason pulls teams, games, betting lines, and advanced stats from the
// provider and upserts them. Rows referencing a school that cannot be mapped
// to a canonical team are skipped and counted rather than failing the run.
func (s *IngestionService) IngestSeason(ctx context.Context, input IngestSeasonInput) (IngestSeasonResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.IngestionService.IngestSeason")
	defer span.End()

	if s.provider == nil {
		return IngestSeasonResult{}, fmt.Errorf("%w: market data provider is not configured", ErrDependencyUnavailable)
	}
	if err := validateBatchInput(input); err != nil {
		return IngestSeasonResult{}, err
	}

	var result IngestSeasonResult
	unmapped := make(map[string]struct{})

	index, err := s.ingestTeams(ctx, input, &result)
	if err != nil {
		return result, err
	}
	gameIDs, err := s.ingestGames(ctx, input, index, unmapped, &result)
	if err != nil {
		return result, err
	}
	if err := s.ingestLines(ctx, input, gameIDs, &result); err != nil {
		return result, err
	}
	if err := s.ingestStats(ctx, input, index, gameIDs, unmapped, &result); err != nil {
		return result, err
	}

	for name := range unmapped {
		result.UnmappedSchools = append(result.UnmappedSchools, name)
	}
	sort.Strings(result.UnmappedSchools)

	s.logger.InfoContext(ctx, "season ingested",
		"season", input.Season,
		"teams", result.TeamCount,
		"games", result.GameCount,
		"quotes", result.QuoteCount,
		"stats", result.StatCount,
		"unmapped_schools", len(result.UnmappedSchools),
	)
	return result, nil
}

func (s *IngestionService) ingestTeams(ctx context.Context, input IngestSeasonInput, result *IngestSeasonResult) (map[string]team.Team, error) {
	providerTeams, err := s.provider.FetchTeams(ctx, input.Season)
	if err != nil {
		return nil, fmt.Errorf("fetch teams season=%d: %w", input.Season, err)
	}
	talents, err := s.provider.FetchTalent(ctx, input.Season)
	if err != nil {
		return nil, fmt.Errorf("fetch talent season=%d: %w", input.Season, err)
	}
	talentBySchool := make(map[string]float64, len(talents))
	for _, row := range talents {
		talentBySchool[team.NormalizeName(row.School)] = row.Talent
	}

	items := make([]team.Team, 0, len(providerTeams))
	for _, pt := range providerTeams {
		item := team.Team{
			ID:                  strconv.FormatInt(pt.ProviderID, 10),
			School:              pt.School,
			Conference:          pt.Conference,
			Classification:      pt.Classification,
			ReturningProduction: pt.ReturningProduction,
		}
		if talent, ok := talentBySchool[team.NormalizeName(pt.School)]; ok {
			t := talent
			item.Talent = &t
		}
		items = append(items, item)
	}
	if !input.DryRun && len(items) > 0 {
		if err := s.teams.UpsertTeams(ctx, items); err != nil {
			return nil, fmt.Errorf("upsert teams: %w", err)
		}
	}
	result.TeamCount = len(items)

	// The lookup index spans both freshly ingested teams and any already
	// persisted, so partial re-ingests still resolve every school.
	index := make(map[string]team.Team)
	if existing, err := s.teams.ListAll(ctx); err == nil {
		for _, t := range existing {
			index[team.NormalizeName(t.School)] = t
		}
	}
	for _, t := range items {
		index[team.NormalizeName(t.School)] = t
	}
	return index, nil
}

func (s *IngestionService) ingestGames(
	ctx context.Context,
	input IngestSeasonInput,
	index map[string]team.Team,
	unmapped map[string]struct{},
	result *IngestSeasonResult,
) (map[int64]string, error) {
	providerGames, err := s.provider.FetchGames(ctx, input.Season, input.Weeks)
	if err != nil {
		return nil, fmt.Errorf("fetch games season=%d: %w", input.Season, err)
	}

	gameIDs := make(map[int64]string, len(providerGames))
	items := make([]game.Game, 0, len(providerGames))
	for _, pg := range providerGames {
		home, homeOK := index[team.NormalizeName(pg.HomeSchool)]
		away, awayOK := index[team.NormalizeName(pg.AwaySchool)]
		if !homeOK || !awayOK {
			if !homeOK {
				unmapped[pg.HomeSchool] = struct{}{}
			}
			if !awayOK {
				unmapped[pg.AwaySchool] = struct{}{}
			}
			result.SkippedGames++
			continue
		}

		id := providerGameID(pg.ProviderID)
		gameIDs[pg.ProviderID] = id
		items = append(items, game.Game{
			ID:                 id,
			Season:             pg.Season,
			Week:               pg.Week,
			SeasonType:         pg.SeasonType,
			KickoffAt:          pg.StartAt,
			HomeTeamID:         home.ID,
			AwayTeamID:         away.ID,
			NeutralSite:        pg.NeutralSite,
			ConferenceGame:     pg.ConferenceGame,
			HomeClassification: pg.HomeClassification,
			AwayClassification: pg.AwayClassification,
			HomePoints:         pg.HomePoints,
			AwayPoints:         pg.AwayPoints,
			Status:             pg.Status,
		})
	}
	if !input.DryRun && len(items) > 0 {
		if err := s.games.UpsertGames(ctx, items); err != nil {
			return nil, fmt.Errorf("upsert games: %w", err)
		}
	}
	result.GameCount = len(items)
	return gameIDs, nil
}

func (s *IngestionService) ingestLines(
	ctx context.Context,
	input IngestSeasonInput,
	gameIDs map[int64]string,
	result *IngestSeasonResult,
) error {
	lineSets, err := s.provider.FetchGameLines(ctx, input.Season, input.Weeks)
	if err != nil {
		return fmt.Errorf("fetch game lines season=%d: %w", input.Season, err)
	}

	var quotes []market.RawLineQuote
	for _, set := range lineSets {
		gameID, ok := gameIDs[set.ProviderGameID]
		if !ok {
			result.SkippedQuotes += len(set.Quotes)
			continue
		}
		for _, q := range set.Quotes {
			mt := market.Type(q.Market)
			if !mt.Valid() || q.Book == "" {
				result.SkippedQuotes++
				continue
			}
			quotes = append(quotes, market.RawLineQuote{
				GameID:     gameID,
				Market:     mt,
				Book:       q.Book,
				Value:      q.Value,
				Closing:    q.Closing,
				ObservedAt: q.ObservedAt,
				Source:     quoteSourceGridStats,
			})
		}
	}
	if !input.DryRun && len(quotes) > 0 {
		if err := s.markets.InsertQuotes(ctx, quotes); err != nil {
			return fmt.Errorf("insert quotes: %w", err)
		}
	}
	result.QuoteCount = len(quotes)
	return nil
}

func (s *IngestionService) ingestStats(
	ctx context.Context,
	input IngestSeasonInput,
	index map[string]team.Team,
	gameIDs map[int64]string,
	unmapped map[string]struct{},
	result *IngestSeasonResult,
) error {
	statRows, err := s.provider.FetchAdvancedStats(ctx, input.Season, input.Weeks)
	if err != nil {
		return fmt.Errorf("fetch advanced stats season=%d: %w", input.Season, err)
	}

	items := make([]efficiency.TeamGame, 0, len(statRows))
	for _, row := range statRows {
		gameID, gameOK := gameIDs[row.ProviderGameID]
		own, ownOK := index[team.NormalizeName(row.School)]
		opp, oppOK := index[team.NormalizeName(row.OpponentSchool)]
		if !gameOK || !ownOK || !oppOK {
			if !ownOK {
				unmapped[row.School] = struct{}{}
			}
			if !oppOK {
				unmapped[row.OpponentSchool] = struct{}{}
			}
			result.SkippedStats++
			continue
		}
		items = append(items, efficiency.TeamGame{
			GameID:           gameID,
			TeamID:           own.ID,
			OpponentID:       opp.ID,
			Season:           row.Season,
			Week:             row.Week,
			OffEPA:           row.OffEPA,
			DefEPA:           row.DefEPA,
			OffSuccessRate:   row.OffSuccessRate,
			DefSuccessRate:   row.DefSuccessRate,
			OffExplosiveness: row.OffExplosiveness,
			DefExplosiveness: row.DefExplosiveness,
			OffPointsPerOpp:  row.OffPointsPerOpp,
			DefPointsPerOpp:  row.DefPointsPerOpp,
			Havoc:            row.Havoc,
			HavocAllowed:     row.HavocAllowed,
		})
	}
	if !input.DryRun && len(items) > 0 {
		if err := s.efficiency.UpsertTeamGames(ctx, items); err != nil {
			return fmt.Errorf("upsert efficiency rows: %w", err)
		}
	}
	result.StatCount = len(items)
	return nil
}

func providerGameID(providerID int64) string {
	return strconv.FormatInt(providerID, 10)
}
