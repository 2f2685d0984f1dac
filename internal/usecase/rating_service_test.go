package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/pricelab/cfb-market/internal/domain/calibration"
	"github.com/pricelab/cfb-market/internal/domain/feature"
	"github.com/pricelab/cfb-market/internal/domain/game"
	"github.com/pricelab/cfb-market/internal/domain/rating"
	"github.com/pricelab/cfb-market/internal/platform/logging"
)

func edgeRow(gameID, teamID string, week int, edgeEPA float64) feature.TeamGame {
	v := edgeEPA
	return feature.TeamGame{
		GameID:         gameID,
		TeamID:         teamID,
		Season:         2024,
		Week:           week,
		FeatureVersion: "fv1",
		Edge:           feature.MetricSet{EPA: &v},
	}
}

func scheduledGame(id, home, away string, week int) game.Game {
	return game.Game{
		ID:         id,
		Season:     2024,
		Week:       week,
		SeasonType: game.SeasonTypeRegular,
		KickoffAt:  time.Date(2024, 9, 7, 19, 0, 0, 0, time.UTC).AddDate(0, 0, 7*week),
		HomeTeamID: home,
		AwayTeamID: away,
		Status:     "final",
	}
}

func TestComputeTeamRatingsSoSAdjustmentIsSymmetric(t *testing.T) {
	t.Parallel()

	rows := []feature.TeamGame{
		edgeRow("g1", "alpha", 1, 1.0),
		edgeRow("g1", "beta", 1, -1.0),
	}
	gameByID := map[string]game.Game{"g1": scheduledGame("g1", "alpha", "beta", 1)}

	params := calibration.ParamSet{SoSWeight: 0.5, ShrinkageBase: 0, Scale: 2.0}
	ratings, samples := computeTeamRatings(rows, gameByID, params)

	// alpha base 1.0, opponent mean -1.0: adjusted 0.5, scaled to 1.0.
	if got := ratings["alpha"]; math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("alpha rating = %v, want 1.0", got)
	}
	if got := ratings["beta"]; math.Abs(got+1.0) > 1e-9 {
		t.Fatalf("beta rating = %v, want -1.0", got)
	}
	if samples["alpha"] != 1 || samples["beta"] != 1 {
		t.Fatalf("samples = %v, want 1 game each", samples)
	}
}

func TestComputeTeamRatingsShrinkageScalesWithSample(t *testing.T) {
	t.Parallel()

	rows := []feature.TeamGame{edgeRow("g1", "alpha", 1, 2.0)}
	params := calibration.ParamSet{SoSWeight: 0, ShrinkageBase: 6, Scale: 3.0}
	ratings, _ := computeTeamRatings(rows, nil, params)

	// One game against a base of six: weight 1/7 of the scaled edge.
	want := 3.0 * (1.0 / 7.0) * 2.0
	if got := ratings["alpha"]; math.Abs(got-want) > 1e-9 {
		t.Fatalf("rating = %v, want %v", got, want)
	}
}

func TestCompositeEdgeRenormalizesMissingFamilies(t *testing.T) {
	t.Parallel()

	epa, sr := 1.0, 2.0
	got, ok := compositeEdge(feature.MetricSet{EPA: &epa, SuccessRate: &sr})
	if !ok {
		t.Fatal("expected a composite from two families")
	}
	want := (0.50*1.0 + 0.20*2.0) / 0.70
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("composite = %v, want %v", got, want)
	}

	if _, ok := compositeEdge(feature.MetricSet{}); ok {
		t.Fatal("empty metric set should yield no composite")
	}
}

func TestComputeSeasonPersistsAndKeepsHomeField(t *testing.T) {
	t.Parallel()

	features := &stubFeatureRepo{rows: []feature.TeamGame{
		edgeRow("g1", "alpha", 1, 1.0),
		edgeRow("g1", "beta", 1, -1.0),
	}}
	games := &stubGameRepo{games: []game.Game{scheduledGame("g1", "alpha", "beta", 1)}}
	ratings := &stubRatingRepo{ratings: []rating.TeamSeason{{
		TeamID: "alpha", Season: 2024, ModelVersion: "m1",
		HomeField: rating.HomeFieldEstimate{Shrunk: 3.1},
	}}}

	svc := NewRatingService(games, features, ratings, logging.NewNop())
	result, err := svc.ComputeSeason(context.Background(), ComputeRatingsInput{
		Season: 2024, ModelVersion: "m1", FeatureVersion: "fv1",
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if result.RatedCount != 2 || result.SkippedCount != 0 {
		t.Fatalf("rated=%d skipped=%d, want 2/0", result.RatedCount, result.SkippedCount)
	}

	stored, found, err := ratings.GetByTeam(context.Background(), 2024, "alpha", "m1")
	if err != nil || !found {
		t.Fatalf("alpha rating missing after upsert: found=%v err=%v", found, err)
	}
	if stored.HomeField.Shrunk != 3.1 {
		t.Fatalf("home field = %v, want prior 3.1 preserved", stored.HomeField.Shrunk)
	}
	if stored.Rating == 0 {
		t.Fatal("alpha rating not written")
	}
}

func TestComputeSeasonSkipsTeamsWithoutEdges(t *testing.T) {
	t.Parallel()

	bare := feature.TeamGame{GameID: "g1", TeamID: "gamma", Season: 2024, Week: 1, FeatureVersion: "fv1"}
	features := &stubFeatureRepo{rows: []feature.TeamGame{
		edgeRow("g2", "alpha", 2, 0.5),
		bare,
	}}
	games := &stubGameRepo{games: []game.Game{
		scheduledGame("g1", "gamma", "alpha", 1),
		scheduledGame("g2", "alpha", "gamma", 2),
	}}
	ratings := &stubRatingRepo{}

	svc := NewRatingService(games, features, ratings, logging.NewNop())
	result, err := svc.ComputeSeason(context.Background(), ComputeRatingsInput{
		Season: 2024, ModelVersion: "m1", FeatureVersion: "fv1",
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if result.RatedCount != 1 || result.SkippedCount != 1 {
		t.Fatalf("rated=%d skipped=%d, want 1/1", result.RatedCount, result.SkippedCount)
	}
	if _, found, _ := ratings.GetByTeam(context.Background(), 2024, "gamma", "m1"); found {
		t.Fatal("edge-less team should not be persisted")
	}
}

func TestComputeSeasonDryRunSkipsWrites(t *testing.T) {
	t.Parallel()

	features := &stubFeatureRepo{rows: []feature.TeamGame{edgeRow("g1", "alpha", 1, 1.0)}}
	ratings := &stubRatingRepo{}

	svc := NewRatingService(&stubGameRepo{}, features, ratings, logging.NewNop())
	result, err := svc.ComputeSeason(context.Background(), ComputeRatingsInput{
		Season: 2024, ModelVersion: "m1", FeatureVersion: "fv1", DryRun: true,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if result.RatedCount != 1 {
		t.Fatalf("rated = %d, want 1", result.RatedCount)
	}
	if len(ratings.ratings) != 0 {
		t.Fatalf("dry run persisted %d rows", len(ratings.ratings))
	}
}

func TestComputeSeasonNoFeaturesIsNotFound(t *testing.T) {
	t.Parallel()

	svc := NewRatingService(&stubGameRepo{}, &stubFeatureRepo{}, &stubRatingRepo{}, logging.NewNop())
	_, err := svc.ComputeSeason(context.Background(), ComputeRatingsInput{
		Season: 2024, ModelVersion: "m1", FeatureVersion: "fv1",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
