package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/pricelab/cfb-market/internal/domain/game"
	"github.com/pricelab/cfb-market/internal/domain/rating"
	"github.com/pricelab/cfb-market/internal/platform/logging"
)

const (
	hfaPriorStrength   = 8.0
	hfaLowSampleCap    = 0.4
	hfaLowSampleGames  = 4
	hfaBypassGames     = 2
	hfaResidualOutlier = 20.0
	hfaRawOutlier      = 8.0

	hfaLeagueMeanFloor = 1.0
	hfaLeagueMeanCeil  = 4.0
	hfaOutputFloor     = 0.5
	hfaOutputCeil      = 5.0

	hfaStatusUpdated = "updated"
	hfaStatusSkipped = "skipped"
	hfaStatusFailed  = "failed"
)

type HFAService struct {
	games   game.Repository
	ratings rating.Repository
	logger  *logging.Logger
}

func NewHFAService(games game.Repository, ratings rating.Repository, logger *logging.Logger) *HFAService {
	return &HFAService{games: games, ratings: ratings, logger: logger}
}

type EstimateHomeFieldInput struct {
	Season       int    `validate:"required,gte=1900"`
	ModelVersion string `validate:"required"`
	DryRun       bool
}

type EstimateHomeFieldResult struct {
	TeamCount    int                  `json:"team_count"`
	UpdatedCount int                  `json:"updated_count"`
	SkippedCount int                  `json:"skipped_count"`
	FailedCount  int                  `json:"failed_count"`
	LeagueMean   float64              `json:"league_mean"`
	Rows         []HomeFieldRowResult `json:"rows"`
}

type HomeFieldRowResult struct {
	TeamID  string  `json:"team_id"`
	Status  string  `json:"status"`
	Raw     float64 `json:"raw"`
	Shrunk  float64 `json:"shrunk"`
	Samples int     `json:"samples"`
	Capped  bool    `json:"capped,omitempty"`
	Outlier bool    `json:"outlier,omitempty"`
	Message string  `json:"message,omitempty"`
}

// teamResiduals accumulates home-field residuals for one team. Away-game
// residuals are stored already sign-flipped into "extra edge at home" form.
type teamResiduals struct {
	homeGames int
	awayGames int
	values    []float64
}

func (r teamResiduals) sampleSize() int { return r.homeGames + r.awayGames }

func (r teamResiduals) raw() float64 {
	if len(r.values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range r.values {
		sum += v
	}
	return sum / float64(len(r.values))
}

// filteredRaw recomputes the raw average discarding data-quality outliers.
// Used only for the league-mean computation.
func (r teamResiduals) filteredRaw() (float64, bool) {
	var sum float64
	var n int
	for _, v := range r.values {
		if math.Abs(v) > hfaResidualOutlier {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// EstimateSeason recomputes each rated team's home-field advantage from
// completed-game residuals and writes the shrunk estimate back onto the
// team's season rating row.
func (s *HFAService) EstimateSeason(ctx context.Context, input EstimateHomeFieldInput) (EstimateHomeFieldResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.HFAService.EstimateSeason")
	defer span.End()

	if s.games == nil || s.ratings == nil {
		return EstimateHomeFieldResult{}, fmt.Errorf("%w: hfa service is not fully configured", ErrDependencyUnavailable)
	}
	if err := validateBatchInput(input); err != nil {
		return EstimateHomeFieldResult{}, err
	}

	ratingRows, err := s.ratings.ListBySeason(ctx, input.Season, input.ModelVersion)
	if err != nil {
		return EstimateHomeFieldResult{}, fmt.Errorf("list ratings season=%d version=%s: %w", input.Season, input.ModelVersion, err)
	}
	if len(ratingRows) == 0 {
		return EstimateHomeFieldResult{}, fmt.Errorf("%w: no ratings for season=%d version=%s", ErrNotFound, input.Season, input.ModelVersion)
	}
	ratingByTeam := make(map[string]float64, len(ratingRows))
	for _, row := range ratingRows {
		ratingByTeam[row.TeamID] = row.Rating
	}

	games, err := s.games.ListBySeason(ctx, input.Season)
	if err != nil {
		return EstimateHomeFieldResult{}, fmt.Errorf("list games season=%d: %w", input.Season, err)
	}

	residuals := collectHomeFieldResiduals(games, ratingByTeam)
	leagueMean := leagueMeanHomeField(residuals)

	result := EstimateHomeFieldResult{
		TeamCount:  len(ratingRows),
		LeagueMean: leagueMean,
		Rows:       make([]HomeFieldRowResult, 0, len(ratingRows)),
	}

	teamIDs := make([]string, 0, len(ratingRows))
	for _, row := range ratingRows {
		teamIDs = append(teamIDs, row.TeamID)
	}
	sort.Strings(teamIDs)

	for _, teamID := range teamIDs {
		res := residuals[teamID]
		row := HomeFieldRowResult{TeamID: teamID, Samples: res.sampleSize()}

		if res.sampleSize() == 0 {
			row.Status = hfaStatusSkipped
			row.Message = "no eligible home/away games"
			result.SkippedCount++
			result.Rows = append(result.Rows, row)
			continue
		}

		estimate := shrinkHomeField(res, leagueMean)
		row.Raw = estimate.Raw
		row.Shrunk = estimate.Shrunk
		row.Capped = estimate.Capped
		row.Outlier = estimate.Outlier
		row.Status = hfaStatusUpdated

		if !input.DryRun {
			if err := s.ratings.UpdateHomeField(ctx, input.Season, teamID, input.ModelVersion, estimate); err != nil {
				row.Status = hfaStatusFailed
				row.Message = fmt.Sprintf("update home field: %v", err)
				result.FailedCount++
				result.Rows = append(result.Rows, row)
				continue
			}
		}
		result.UpdatedCount++
		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

// collectHomeFieldResiduals walks completed regular-season games on real home
// fields and attributes a residual to each rated participant.
func collectHomeFieldResiduals(games []game.Game, ratingByTeam map[string]float64) map[string]*teamResiduals {
	out := make(map[string]*teamResiduals)
	add := func(teamID string) *teamResiduals {
		r, ok := out[teamID]
		if !ok {
			r = &teamResiduals{}
			out[teamID] = r
		}
		return r
	}

	for _, g := range games {
		if !g.Completed() || g.NeutralSite || g.SeasonType != game.SeasonTypeRegular {
			continue
		}
		margin, ok := g.HomeMargin()
		if !ok {
			continue
		}
		homeRating, homeOK := ratingByTeam[g.HomeTeamID]
		awayRating, awayOK := ratingByTeam[g.AwayTeamID]
		if !homeOK || !awayOK {
			continue
		}

		// Home side: residual over the rating-implied margin with the
		// default home edge applied.
		expectedHome := (homeRating - awayRating) + rating.DefaultHomeField
		homeRes := margin - expectedHome
		hr := add(g.HomeTeamID)
		hr.homeGames++
		hr.values = append(hr.values, homeRes)

		// Away side: same game from the road team's perspective, then
		// sign-flipped into "edge this team would have gotten at home".
		expectedAway := (awayRating - homeRating) - rating.DefaultHomeField
		awayRes := -margin - expectedAway
		ar := add(g.AwayTeamID)
		ar.awayGames++
		ar.values = append(ar.values, -awayRes)
	}
	return out
}

// leagueMeanHomeField is the clamped median of per-team raw estimates after
// discarding data-quality outlier residuals.
func leagueMeanHomeField(residuals map[string]*teamResiduals) float64 {
	raws := make([]float64, 0, len(residuals))
	for _, res := range residuals {
		if v, ok := res.filteredRaw(); ok {
			raws = append(raws, v)
		}
	}
	if len(raws) == 0 {
		return rating.DefaultHomeField
	}
	m := median(raws)
	return clamp(m, hfaLeagueMeanFloor, hfaLeagueMeanCeil)
}

func shrinkHomeField(res *teamResiduals, leagueMean float64) rating.HomeFieldEstimate {
	n := res.sampleSize()
	raw := res.raw()

	weight := float64(n) / (float64(n) + hfaPriorStrength)
	if n < hfaLowSampleGames && weight > hfaLowSampleCap {
		weight = hfaLowSampleCap
	}
	if n < hfaBypassGames {
		weight = 0
	}

	shrunk := weight*raw + (1-weight)*leagueMean
	clamped := clamp(shrunk, hfaOutputFloor, hfaOutputCeil)

	return rating.HomeFieldEstimate{
		Raw:          raw,
		Shrunk:       clamped,
		HomeGames:    res.homeGames,
		AwayGames:    res.awayGames,
		ShrinkWeight: weight,
		LeagueMean:   leagueMean,
		Capped:       clamped != shrunk,
		Outlier:      math.Abs(raw) > hfaRawOutlier,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
