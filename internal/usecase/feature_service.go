package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pricelab/cfb-market/internal/domain/efficiency"
	"github.com/pricelab/cfb-market/internal/domain/feature"
	"github.com/pricelab/cfb-market/internal/domain/game"
	"github.com/pricelab/cfb-market/internal/domain/team"
	"github.com/pricelab/cfb-market/internal/platform/logging"
)

const (
	featureStatusBuilt   = "built"
	featureStatusSkipped = "skipped"

	byeRestDays = 13
)

// Fixed most-recent-first recency weights. Missing window mass is
// redistributed to the talent prior, never renormalized away silently.
var (
	recencyWeights3 = []float64{0.5, 0.3, 0.2}
	recencyWeights5 = []float64{0.35, 0.25, 0.18, 0.12, 0.10}
)

var metricFamilies = []string{"epa", "success_rate", "explosiveness", "points_per_opp", "havoc"}

type FeatureService struct {
	games      game.Repository
	teams      team.Repository
	efficiency efficiency.Repository
	features   feature.Repository
	logger     *logging.Logger
	now        func() time.Time
}

func NewFeatureService(
	games game.Repository,
	teams team.Repository,
	eff efficiency.Repository,
	features feature.Repository,
	logger *logging.Logger,
) *FeatureService {
	return &FeatureService{
		games:      games,
		teams:      teams,
		efficiency: eff,
		features:   features,
		logger:     logger,
		now:        time.Now,
	}
}

type BuildFeaturesInput struct {
	Season         int    `validate:"required,gte=1900"`
	Weeks          []int  `validate:"omitempty,dive,gte=1"`
	FeatureVersion string `validate:"required"`
	DryRun         bool
}

type BuildFeaturesResult struct {
	RowCount       int                `json:"row_count"`
	BuiltCount     int                `json:"built_count"`
	SkippedCount   int                `json:"skipped_count"`
	LowSampleCount int                `json:"low_sample_count"`
	Rows           []FeatureRowResult `json:"rows"`
}

type FeatureRowResult struct {
	GameID     string `json:"game_id"`
	TeamID     string `json:"team_id"`
	Week       int    `json:"week"`
	Status     string `json:"status"`
	LowSample3 bool   `json:"low_sample_3,omitempty"`
	LowSample5 bool   `json:"low_sample_5,omitempty"`
	Message    string `json:"message,omitempty"`
}

// logEntry is one team-game in a team's chronological season log.
type logEntry struct {
	seq  int
	eff  efficiency.TeamGame
	game game.Game
	home bool
}

type teamGameKey struct {
	gameID string
	teamID string
}

// BuildSeason computes opponent-adjusted feature rows for every team-game
// with an efficiency line. The whole season is always used as the
// normalization batch so week-filtered runs reproduce identical values.
func (s *FeatureService) BuildSeason(ctx context.Context, input BuildFeaturesInput) (BuildFeaturesResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.FeatureService.BuildSeason")
	defer span.End()

	if s.games == nil || s.teams == nil || s.efficiency == nil || s.features == nil {
		return BuildFeaturesResult{}, fmt.Errorf("%w: feature service is not fully configured", ErrDependencyUnavailable)
	}
	if err := validateBatchInput(input); err != nil {
		return BuildFeaturesResult{}, err
	}

	games, err := s.games.ListBySeason(ctx, input.Season)
	if err != nil {
		return BuildFeaturesResult{}, fmt.Errorf("list games season=%d: %w", input.Season, err)
	}
	effRows, err := s.efficiency.ListBySeason(ctx, input.Season)
	if err != nil {
		return BuildFeaturesResult{}, fmt.Errorf("list efficiency season=%d: %w", input.Season, err)
	}
	teamRows, err := s.teams.ListAll(ctx)
	if err != nil {
		return BuildFeaturesResult{}, fmt.Errorf("list teams: %w", err)
	}

	gameByID := make(map[string]game.Game, len(games))
	for _, g := range games {
		gameByID[g.ID] = g
	}
	teamByID := make(map[string]team.Team, len(teamRows))
	for _, t := range teamRows {
		teamByID[t.ID] = t
	}

	result := BuildFeaturesResult{}
	logs, skipped := buildTeamLogs(effRows, gameByID)
	for _, row := range skipped {
		result.Rows = append(result.Rows, row)
		result.SkippedCount++
	}

	rows := computeAdjustedRows(logs, input.Season, input.FeatureVersion)
	attachMatchupEdges(rows)
	attachRecency(rows, logs, talentPriors(rows, logs, teamByID))
	applyHygiene(rows)

	computedAt := s.now()
	weekFilter := make(map[int]struct{}, len(input.Weeks))
	for _, w := range input.Weeks {
		weekFilter[w] = struct{}{}
	}

	emit := make([]feature.TeamGame, 0, len(rows))
	for _, teamID := range sortedLogTeams(logs) {
		for _, entry := range logs[teamID] {
			key := teamGameKey{gameID: entry.game.ID, teamID: teamID}
			row, ok := rows[key]
			if !ok {
				continue
			}
			if len(weekFilter) > 0 {
				if _, keep := weekFilter[entry.game.Week]; !keep {
					continue
				}
			}
			row.Context = buildContext(entry, logs[teamID], teamByID)
			row.ComputedAt = computedAt
			emit = append(emit, *row)

			rr := FeatureRowResult{
				GameID:     row.GameID,
				TeamID:     row.TeamID,
				Week:       row.Week,
				Status:     featureStatusBuilt,
				LowSample3: row.LowSample3,
				LowSample5: row.LowSample5,
			}
			if row.LowSample3 || row.LowSample5 {
				result.LowSampleCount++
			}
			result.Rows = append(result.Rows, rr)
			result.BuiltCount++
		}
	}
	result.RowCount = len(result.Rows)

	if !input.DryRun && len(emit) > 0 {
		if err := s.features.UpsertTeamGames(ctx, emit); err != nil {
			return result, fmt.Errorf("upsert features version=%s: %w", input.FeatureVersion, err)
		}
	}
	return result, nil
}

// buildTeamLogs assembles each team's season log sorted by sequence key.
// Efficiency rows pointing at unknown games are skipped and reported.
func buildTeamLogs(effRows []efficiency.TeamGame, gameByID map[string]game.Game) (map[string][]logEntry, []FeatureRowResult) {
	logs := make(map[string][]logEntry)
	var skipped []FeatureRowResult
	for _, eff := range effRows {
		g, ok := gameByID[eff.GameID]
		if !ok {
			skipped = append(skipped, FeatureRowResult{
				GameID:  eff.GameID,
				TeamID:  eff.TeamID,
				Week:    eff.Week,
				Status:  featureStatusSkipped,
				Message: "efficiency row references unknown game",
			})
			continue
		}
		logs[eff.TeamID] = append(logs[eff.TeamID], logEntry{
			seq:  eff.SequenceKey(),
			eff:  eff,
			game: g,
			home: g.HomeTeamID == eff.TeamID,
		})
	}
	for teamID := range logs {
		entries := logs[teamID]
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
		logs[teamID] = entries
	}
	return logs, skipped
}

// priorSlice returns the strictly-earlier portion of a team log relative to
// the given sequence key. Slicing on the ordinal key is what enforces the
// no-leakage rule; there is no date comparison anywhere downstream.
func priorSlice(entries []logEntry, seq int) []logEntry {
	lo := sort.Search(len(entries), func(i int) bool { return entries[i].seq >= seq })
	return entries[:lo]
}

func computeAdjustedRows(logs map[string][]logEntry, season int, version string) map[teamGameKey]*feature.TeamGame {
	rows := make(map[teamGameKey]*feature.TeamGame)
	for teamID, entries := range logs {
		for _, entry := range entries {
			oppPrior := sideAverages(priorSlice(logs[entry.eff.OpponentID], entry.seq))
			row := &feature.TeamGame{
				GameID:         entry.game.ID,
				TeamID:         teamID,
				Season:         season,
				Week:           entry.game.Week,
				FeatureVersion: version,
				AdjOffense:     adjustedOffense(entry.eff, oppPrior),
				AdjDefense:     adjustedDefense(entry.eff, oppPrior),
			}
			rows[teamGameKey{gameID: entry.game.ID, teamID: teamID}] = row
		}
	}
	return rows
}

// sideAverages folds a log prefix into per-side means, skipping absent stats
// so a missing provider value never drags an average toward zero.
func sideAverages(entries []logEntry) efficiency.SideAverages {
	avg := efficiency.SideAverages{Games: len(entries)}
	mean := func(pick func(efficiency.TeamGame) *float64) *float64 {
		var sum float64
		var n int
		for _, e := range entries {
			if v := pick(e.eff); v != nil {
				sum += *v
				n++
			}
		}
		if n == 0 {
			return nil
		}
		m := sum / float64(n)
		return &m
	}

	avg.OffEPA = mean(func(e efficiency.TeamGame) *float64 { return e.OffEPA })
	avg.DefEPA = mean(func(e efficiency.TeamGame) *float64 { return e.DefEPA })
	avg.OffSuccessRate = mean(func(e efficiency.TeamGame) *float64 { return e.OffSuccessRate })
	avg.DefSuccessRate = mean(func(e efficiency.TeamGame) *float64 { return e.DefSuccessRate })
	avg.OffExplosiveness = mean(func(e efficiency.TeamGame) *float64 { return e.OffExplosiveness })
	avg.DefExplosiveness = mean(func(e efficiency.TeamGame) *float64 { return e.DefExplosiveness })
	avg.OffPointsPerOpp = mean(func(e efficiency.TeamGame) *float64 { return e.OffPointsPerOpp })
	avg.DefPointsPerOpp = mean(func(e efficiency.TeamGame) *float64 { return e.DefPointsPerOpp })
	avg.Havoc = mean(func(e efficiency.TeamGame) *float64 { return e.Havoc })
	avg.HavocAllowed = mean(func(e efficiency.TeamGame) *float64 { return e.HavocAllowed })
	return avg
}

// adjustedOffense offsets raw offensive output by what the opponent's
// defense typically allows. With no opponent history the raw value stands.
func adjustedOffense(eff efficiency.TeamGame, oppPrior efficiency.SideAverages) feature.MetricSet {
	return feature.MetricSet{
		EPA:           offsetMetric(eff.OffEPA, oppPrior.DefEPA),
		SuccessRate:   offsetMetric(eff.OffSuccessRate, oppPrior.DefSuccessRate),
		Explosiveness: offsetMetric(eff.OffExplosiveness, oppPrior.DefExplosiveness),
		PointsPerOpp:  offsetMetric(eff.OffPointsPerOpp, oppPrior.DefPointsPerOpp),
		Havoc:         offsetMetric(eff.Havoc, oppPrior.HavocAllowed),
	}
}

// adjustedDefense negates the allowed-vs-expected delta so defensive nets
// share the higher-is-better orientation with offensive nets.
func adjustedDefense(eff efficiency.TeamGame, oppPrior efficiency.SideAverages) feature.MetricSet {
	return feature.MetricSet{
		EPA:           negate(offsetMetric(eff.DefEPA, oppPrior.OffEPA)),
		SuccessRate:   negate(offsetMetric(eff.DefSuccessRate, oppPrior.OffSuccessRate)),
		Explosiveness: negate(offsetMetric(eff.DefExplosiveness, oppPrior.OffExplosiveness)),
		PointsPerOpp:  negate(offsetMetric(eff.DefPointsPerOpp, oppPrior.OffPointsPerOpp)),
		Havoc:         negate(offsetMetric(eff.HavocAllowed, oppPrior.Havoc)),
	}
}

// offsetMetric subtracts the opponent baseline from a raw value. A nil raw
// value stays nil; a nil baseline leaves the raw value unadjusted.
func offsetMetric(raw, baseline *float64) *float64 {
	if raw == nil {
		return nil
	}
	v := *raw
	if baseline != nil {
		v -= *baseline
	}
	return &v
}

func negate(v *float64) *float64 {
	if v == nil {
		return nil
	}
	n := -*v
	return &n
}

// attachMatchupEdges sets each row's edge to its adjusted offense against
// the opposing row's adjusted defense in the same game.
func attachMatchupEdges(rows map[teamGameKey]*feature.TeamGame) {
	byGame := make(map[string][]*feature.TeamGame, len(rows)/2+1)
	for _, row := range rows {
		byGame[row.GameID] = append(byGame[row.GameID], row)
	}
	for _, row := range rows {
		var opp *feature.TeamGame
		for _, candidate := range byGame[row.GameID] {
			if candidate.TeamID != row.TeamID {
				opp = candidate
				break
			}
		}
		if opp == nil {
			// Opponent has no efficiency line: the edge falls back to the
			// team's own adjusted nets.
			row.Edge = diffMetricSets(row.AdjOffense, feature.MetricSet{})
			continue
		}
		row.Edge = diffMetricSets(row.AdjOffense, opp.AdjDefense)
	}
}

func diffMetricSets(a, b feature.MetricSet) feature.MetricSet {
	sub := func(x, y *float64) *float64 {
		if x == nil {
			return nil
		}
		v := *x
		if y != nil {
			v -= *y
		}
		return &v
	}
	return feature.MetricSet{
		EPA:           sub(a.EPA, b.EPA),
		SuccessRate:   sub(a.SuccessRate, b.SuccessRate),
		Explosiveness: sub(a.Explosiveness, b.Explosiveness),
		PointsPerOpp:  sub(a.PointsPerOpp, b.PointsPerOpp),
		Havoc:         sub(a.Havoc, b.Havoc),
	}
}

func sortedLogTeams(logs map[string][]logEntry) []string {
	out := make([]string, 0, len(logs))
	for teamID := range logs {
		out = append(out, teamID)
	}
	sort.Strings(out)
	return out
}

func buildContext(entry logEntry, teamLog []logEntry, teamByID map[string]team.Team) feature.Context {
	ctx := feature.Context{
		Home:           entry.home,
		NeutralSite:    entry.game.NeutralSite,
		ConferenceGame: entry.game.ConferenceGame,
	}
	if opp, ok := teamByID[entry.eff.OpponentID]; ok {
		ctx.OpponentTier = opp.Tier()
	}

	prior := priorSlice(teamLog, entry.seq)
	if len(prior) > 0 {
		prev := prior[len(prior)-1]
		if !prev.game.KickoffAt.IsZero() && !entry.game.KickoffAt.IsZero() {
			days := int(entry.game.KickoffAt.Sub(prev.game.KickoffAt).Hours() / 24)
			ctx.RestDays = &days
			ctx.OffBye = days >= byeRestDays
		}
	}
	return ctx
}
