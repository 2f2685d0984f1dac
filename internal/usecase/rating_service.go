package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pricelab/cfb-market/internal/domain/calibration"
	"github.com/pricelab/cfb-market/internal/domain/feature"
	"github.com/pricelab/cfb-market/internal/domain/game"
	"github.com/pricelab/cfb-market/internal/domain/rating"
	"github.com/pricelab/cfb-market/internal/platform/logging"
)

// Composite weights over the standardized matchup-edge families. Families
// missing on a row redistribute their weight across the ones present.
var ratingFamilyWeights = map[string]float64{
	"epa":            0.50,
	"success_rate":   0.20,
	"explosiveness":  0.15,
	"points_per_opp": 0.10,
	"havoc":          0.05,
}

const (
	defaultSoSWeight     = 0.5
	defaultShrinkageBase = 6.0
	defaultRatingScale   = 3.0
)

type RatingService struct {
	games    game.Repository
	features feature.Repository
	ratings  rating.Repository
	logger   *logging.Logger
	now      func() time.Time
}

func NewRatingService(games game.Repository, features feature.Repository, ratings rating.Repository, logger *logging.Logger) *RatingService {
	return &RatingService{
		games:    games,
		features: features,
		ratings:  ratings,
		logger:   logger,
		now:      time.Now,
	}
}

type ComputeRatingsInput struct {
	Season         int    `validate:"required,gte=1900"`
	ModelVersion   string `validate:"required"`
	FeatureVersion string `validate:"required"`
	// Zero hyperparameters fall back to the calibrated defaults.
	SoSWeight     float64 `validate:"omitempty,gte=0"`
	ShrinkageBase float64 `validate:"omitempty,gte=0"`
	Scale         float64 `validate:"omitempty,gt=0"`
	DryRun        bool
}

type ComputeRatingsResult struct {
	TeamCount    int               `json:"team_count"`
	RatedCount   int               `json:"rated_count"`
	SkippedCount int               `json:"skipped_count"`
	Rows         []RatingRowResult `json:"rows"`
}

type RatingRowResult struct {
	TeamID  string  `json:"team_id"`
	Rating  float64 `json:"rating"`
	Games   int     `json:"games"`
	Status  string  `json:"status"`
	Message string  `json:"message,omitempty"`
}

// ComputeSeason derives one rating per team from its feature rows and
// persists the table under the model version. Existing home-field values for
// the same version survive the upsert.
func (s *RatingService) ComputeSeason(ctx context.Context, input ComputeRatingsInput) (ComputeRatingsResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.RatingService.ComputeSeason")
	defer span.End()

	if s.games == nil || s.features == nil || s.ratings == nil {
		return ComputeRatingsResult{}, fmt.Errorf("%w: rating service is not fully configured", ErrDependencyUnavailable)
	}
	if err := validateBatchInput(input); err != nil {
		return ComputeRatingsResult{}, err
	}

	params := calibration.ParamSet{
		SoSWeight:     input.SoSWeight,
		ShrinkageBase: input.ShrinkageBase,
		Scale:         input.Scale,
	}
	if params.SoSWeight == 0 {
		params.SoSWeight = defaultSoSWeight
	}
	if params.ShrinkageBase == 0 {
		params.ShrinkageBase = defaultShrinkageBase
	}
	if params.Scale == 0 {
		params.Scale = defaultRatingScale
	}

	featureRows, err := s.features.ListBySeason(ctx, input.Season, input.FeatureVersion)
	if err != nil {
		return ComputeRatingsResult{}, fmt.Errorf("list features season=%d version=%s: %w", input.Season, input.FeatureVersion, err)
	}
	if len(featureRows) == 0 {
		return ComputeRatingsResult{}, fmt.Errorf("%w: no feature rows for season=%d version=%s", ErrNotFound, input.Season, input.FeatureVersion)
	}
	games, err := s.games.ListBySeason(ctx, input.Season)
	if err != nil {
		return ComputeRatingsResult{}, fmt.Errorf("list games season=%d: %w", input.Season, err)
	}
	gameByID := make(map[string]game.Game, len(games))
	for _, g := range games {
		gameByID[g.ID] = g
	}

	ratings, sampleSizes := computeTeamRatings(featureRows, gameByID, params)

	result := ComputeRatingsResult{TeamCount: len(sampleSizes)}
	updatedAt := s.now()

	teamIDs := make([]string, 0, len(sampleSizes))
	for teamID := range sampleSizes {
		teamIDs = append(teamIDs, teamID)
	}
	sort.Strings(teamIDs)

	upserts := make([]rating.TeamSeason, 0, len(teamIDs))
	for _, teamID := range teamIDs {
		value, ok := ratings[teamID]
		if !ok {
			result.SkippedCount++
			result.Rows = append(result.Rows, RatingRowResult{
				TeamID: teamID, Games: sampleSizes[teamID],
				Status: "skipped", Message: "no usable edge metrics",
			})
			continue
		}

		row := rating.TeamSeason{
			TeamID:       teamID,
			Season:       input.Season,
			ModelVersion: input.ModelVersion,
			Rating:       value,
			HomeField: rating.HomeFieldEstimate{
				Shrunk:     rating.DefaultHomeField,
				LeagueMean: rating.DefaultHomeField,
			},
			UpdatedAt: updatedAt,
		}
		if existing, found, err := s.ratings.GetByTeam(ctx, input.Season, teamID, input.ModelVersion); err == nil && found {
			row.HomeField = existing.HomeField
		}
		upserts = append(upserts, row)
		result.RatedCount++
		result.Rows = append(result.Rows, RatingRowResult{
			TeamID: teamID, Rating: value, Games: sampleSizes[teamID], Status: "rated",
		})
	}

	if !input.DryRun && len(upserts) > 0 {
		if err := s.ratings.UpsertRatings(ctx, upserts); err != nil {
			return result, fmt.Errorf("upsert ratings version=%s: %w", input.ModelVersion, err)
		}
	}
	return result, nil
}

// computeTeamRatings maps feature rows to one rating per team under the
// given hyperparameters: composite edge, strength-of-schedule adjustment,
// then sample-size shrinkage and the calibration scale.
func computeTeamRatings(rows []feature.TeamGame, gameByID map[string]game.Game, params calibration.ParamSet) (map[string]float64, map[string]int) {
	type acc struct {
		sum       float64
		games     int
		withEdge  int
		opponents []string
	}
	byTeam := make(map[string]*acc)

	for i := range rows {
		row := &rows[i]
		a, ok := byTeam[row.TeamID]
		if !ok {
			a = &acc{}
			byTeam[row.TeamID] = a
		}
		a.games++
		if g, found := gameByID[row.GameID]; found {
			if opp, hasOpp := g.OpponentOf(row.TeamID); hasOpp {
				a.opponents = append(a.opponents, opp)
			}
		}
		if composite, ok := compositeEdge(row.Edge); ok {
			a.sum += composite
			a.withEdge++
		}
	}

	base := make(map[string]float64, len(byTeam))
	sampleSizes := make(map[string]int, len(byTeam))
	for teamID, a := range byTeam {
		sampleSizes[teamID] = a.games
		if a.withEdge == 0 {
			continue
		}
		base[teamID] = a.sum / float64(a.withEdge)
	}

	out := make(map[string]float64, len(base))
	for teamID, b := range base {
		a := byTeam[teamID]

		var oppSum float64
		var oppN int
		for _, opp := range a.opponents {
			if v, ok := base[opp]; ok {
				oppSum += v
				oppN++
			}
		}
		adjusted := b
		if oppN > 0 {
			adjusted += params.SoSWeight * (oppSum / float64(oppN))
		}

		weight := 1.0
		if params.ShrinkageBase > 0 {
			weight = float64(a.withEdge) / (float64(a.withEdge) + params.ShrinkageBase)
		}
		out[teamID] = params.Scale * weight * adjusted
	}
	return out, sampleSizes
}

// compositeEdge folds one row's standardized edge families into a single
// scalar, renormalizing weights over the families actually present.
func compositeEdge(edge feature.MetricSet) (float64, bool) {
	var sum, used float64
	for _, family := range metricFamilies {
		v := *familyField(&edge, family)
		if v == nil {
			continue
		}
		w := ratingFamilyWeights[family]
		sum += w * *v
		used += w
	}
	if used == 0 {
		return 0, false
	}
	return sum / used, true
}
