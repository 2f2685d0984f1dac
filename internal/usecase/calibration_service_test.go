package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pricelab/cfb-market/internal/domain/calibration"
	"github.com/pricelab/cfb-market/internal/domain/feature"
	"github.com/pricelab/cfb-market/internal/domain/game"
	"github.com/pricelab/cfb-market/internal/domain/market"
	"github.com/pricelab/cfb-market/internal/domain/rating"
	"github.com/pricelab/cfb-market/internal/platform/logging"
)

type stubCalibrationRepo struct {
	mu   sync.Mutex
	rows []calibration.Result
}

func (s *stubCalibrationRepo) ListBySeason(_ context.Context, season int, modelVersion string) ([]calibration.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]calibration.Result, 0, len(s.rows))
	for _, r := range s.rows {
		if r.Season == season && r.ModelVersion == modelVersion {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubCalibrationRepo) GetByKey(_ context.Context, season int, modelVersion, paramKey string) (calibration.Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.Season == season && r.ModelVersion == modelVersion && r.Params.Key() == paramKey {
			return r, true, nil
		}
	}
	return calibration.Result{}, false, nil
}

func (s *stubCalibrationRepo) InsertResult(_ context.Context, item calibration.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, item)
	return nil
}

func (s *stubCalibrationRepo) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

var (
	calStrengths     = map[string]float64{"ta": 1.5, "tb": 0.5, "tc": -0.5, "td": -1.5}
	calHomeFields    = map[string]float64{"ta": 3.0, "tb": 2.6, "tc": 2.2, "td": 1.8}
	calFixtureParams = calibration.ParamSet{SoSWeight: 0.5, ShrinkageBase: 4, Scale: 3}
)

// calibrationFixture builds a nine-week double round robin where the market
// spread is an exact linear function of the rating difference (at the given
// slope) plus the home team's field edge. With zero noise the baseline OLS
// recovers the slope to machine precision, which makes the state-machine
// transitions deterministic.
func calibrationFixture(t *testing.T, marketSlope float64) (*stubGameRepo, *stubMarketRepo, *stubFeatureRepo, *stubRatingRepo) {
	t.Helper()

	pairings := [3][2][2]string{
		{{"ta", "tb"}, {"tc", "td"}},
		{{"ta", "tc"}, {"tb", "td"}},
		{{"ta", "td"}, {"tb", "tc"}},
	}

	var games []game.Game
	var featureRows []feature.TeamGame
	for week := 1; week <= 9; week++ {
		round := (week - 1) / 3
		for gi, pair := range pairings[(week-1)%3] {
			home, away := pair[0], pair[1]
			if round == 1 {
				home, away = away, home
			}
			id := fmt.Sprintf("g%02d-%d", week, gi)
			games = append(games, game.Game{
				ID:         id,
				Season:     2024,
				Week:       week,
				SeasonType: game.SeasonTypeRegular,
				KickoffAt:  time.Date(2024, 8, 31, 19, 0, 0, 0, time.UTC).AddDate(0, 0, 7*week),
				HomeTeamID: home,
				AwayTeamID: away,
				Status:     "final",
			})
			for _, teamID := range []string{home, away} {
				strength := calStrengths[teamID]
				featureRows = append(featureRows, feature.TeamGame{
					GameID:         id,
					TeamID:         teamID,
					Season:         2024,
					Week:           week,
					FeatureVersion: "fv1",
					Edge:           feature.MetricSet{EPA: &strength},
				})
			}
		}
	}

	gameByID := make(map[string]game.Game, len(games))
	for _, g := range games {
		gameByID[g.ID] = g
	}
	ratings, _ := computeTeamRatings(featureRows, gameByID, calFixtureParams)

	var lines []market.ConsensusLine
	for _, g := range games {
		margin := marketSlope*(ratings[g.HomeTeamID]-ratings[g.AwayTeamID]) + calHomeFields[g.HomeTeamID]
		value := -math.Abs(margin)
		side := market.SideHome
		if margin < 0 {
			side = market.SideAway
		}
		v := value
		lines = append(lines, market.ConsensusLine{
			GameID:      g.ID,
			Market:      market.TypeSpread,
			Version:     "sp1",
			Value:       &v,
			FavoredSide: side,
			BookCount:   4,
			QuoteCount:  4,
			Window:      market.WindowPreKick,
		})
	}

	var seasonRatings []rating.TeamSeason
	for teamID, hf := range calHomeFields {
		seasonRatings = append(seasonRatings, rating.TeamSeason{
			TeamID:       teamID,
			Season:       2024,
			ModelVersion: "m1",
			HomeField:    rating.HomeFieldEstimate{Shrunk: hf},
		})
	}

	return &stubGameRepo{games: games},
		&stubMarketRepo{consensus: lines},
		&stubFeatureRepo{rows: featureRows},
		&stubRatingRepo{ratings: seasonRatings}
}

func calibrateInput(dryRun bool) CalibrateInput {
	return CalibrateInput{
		Season:         2024,
		ModelVersion:   "m1",
		FeatureVersion: "fv1",
		SpreadVersion:  "sp1",
		SoSWeight:      calFixtureParams.SoSWeight,
		ShrinkageBase:  calFixtureParams.ShrinkageBase,
		Scale:          calFixtureParams.Scale,
		DryRun:         dryRun,
	}
}

func TestCalibrateConvergedMarketPassesGates(t *testing.T) {
	t.Parallel()

	games, markets, features, ratings := calibrationFixture(t, 1.0)
	calibrations := &stubCalibrationRepo{}
	svc := NewCalibrationService(games, markets, features, ratings, calibrations, nil, logging.NewNop())

	result, err := svc.Calibrate(context.Background(), calibrateInput(false))
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}

	if result.State != string(stateConverged) {
		t.Fatalf("state = %s, want converged", result.State)
	}
	if result.Iterations != 0 {
		t.Fatalf("iterations = %d, want 0 for an already-unit slope", result.Iterations)
	}
	if math.Abs(result.InitialSlope-1.0) > 1e-6 {
		t.Fatalf("initial slope = %v, want 1.0", result.InitialSlope)
	}
	if !result.GatesStrict.AllPass() {
		t.Fatalf("strict gates failed: %v", result.GatesStrict.FailedGates())
	}
	if result.Verdict != calibration.VerdictGo {
		t.Fatalf("verdict = %s, want GO", result.Verdict)
	}
	if result.SignAgreement <= 0.5 {
		t.Fatalf("sign agreement = %v, want majority agreement", result.SignAgreement)
	}
	if calibrations.count() != 1 {
		t.Fatalf("persisted results = %d, want 1", calibrations.count())
	}
}

func TestCalibrateRescalesToUnitSlope(t *testing.T) {
	t.Parallel()

	games, markets, features, ratings := calibrationFixture(t, 2.0)
	calibrations := &stubCalibrationRepo{}
	svc := NewCalibrationService(games, markets, features, ratings, calibrations, nil, logging.NewNop())

	result, err := svc.Calibrate(context.Background(), calibrateInput(false))
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}

	if result.State != string(stateConverged) {
		t.Fatalf("state = %s, want converged", result.State)
	}
	if result.Iterations != 1 {
		t.Fatalf("iterations = %d, want a single rescale", result.Iterations)
	}
	if math.Abs(result.InitialSlope-2.0) > 1e-6 {
		t.Fatalf("initial slope = %v, want 2.0", result.InitialSlope)
	}
	// The multiplier absorbs the slope: 3.0 * 2.0.
	if math.Abs(result.Params.Scale-6.0) > 1e-6 {
		t.Fatalf("final scale = %v, want 6.0", result.Params.Scale)
	}
	if math.Abs(result.Coefficients.RatingDiff-1.0) > 1e-6 {
		t.Fatalf("refit slope = %v, want 1.0", result.Coefficients.RatingDiff)
	}
}

func TestCalibrateAbortsOnLowInitialSlope(t *testing.T) {
	t.Parallel()

	games, markets, features, ratings := calibrationFixture(t, 0.4)
	calibrations := &stubCalibrationRepo{}
	svc := NewCalibrationService(games, markets, features, ratings, calibrations, nil, logging.NewNop())

	result, err := svc.Calibrate(context.Background(), calibrateInput(false))
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}

	if result.State != string(stateAbortedLowSlope) {
		t.Fatalf("state = %s, want aborted-low-slope", result.State)
	}
	if result.Iterations != 0 {
		t.Fatalf("iterations = %d, want no rescaling after abort", result.Iterations)
	}
	if math.Abs(result.InitialSlope-0.4) > 1e-6 {
		t.Fatalf("initial slope = %v, want 0.4", result.InitialSlope)
	}
	// The calibration factor must come through untouched.
	if result.Params.Scale != calFixtureParams.Scale {
		t.Fatalf("scale = %v, want original %v", result.Params.Scale, calFixtureParams.Scale)
	}
	if result.Verdict != calibration.VerdictNoGo {
		t.Fatalf("verdict = %s, want NO_GO", result.Verdict)
	}

	persisted, found, err := calibrations.GetByKey(context.Background(), 2024, "m1", result.Params.Key())
	if err != nil || !found {
		t.Fatalf("aborted combination not persisted: found=%v err=%v", found, err)
	}
	if !persisted.AbortedLowSlope {
		t.Fatal("persisted row missing aborted-low-slope flag")
	}
}

func TestCalibrateDryRunSkipsWrites(t *testing.T) {
	t.Parallel()

	games, markets, features, ratings := calibrationFixture(t, 1.0)
	calibrations := &stubCalibrationRepo{}
	svc := NewCalibrationService(games, markets, features, ratings, calibrations, nil, logging.NewNop())

	if _, err := svc.Calibrate(context.Background(), calibrateInput(true)); err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if calibrations.count() != 0 {
		t.Fatalf("dry run persisted %d results", calibrations.count())
	}
}

func TestCalibrateTooFewPricedGamesIsNoSignal(t *testing.T) {
	t.Parallel()

	games, markets, features, ratings := calibrationFixture(t, 1.0)
	// Keep only the first four priced games.
	markets.consensus = markets.consensus[:4]

	svc := NewCalibrationService(games, markets, features, ratings, &stubCalibrationRepo{}, nil, logging.NewNop())
	_, err := svc.Calibrate(context.Background(), calibrateInput(false))
	if !errors.Is(err, ErrNoSignal) {
		t.Fatalf("err = %v, want ErrNoSignal", err)
	}
}

func TestResidualBucketsSplitBySpreadBand(t *testing.T) {
	t.Parallel()

	targets := []float64{3, -5, 10, -12, 20}
	y := []float64{3, -5, 10, -12, 20}
	preds := []float64{2, -5, 11, -12, 18}

	buckets := residualBuckets(targets, y, preds)
	if len(buckets) != 2 {
		t.Fatalf("buckets = %d, want 2", len(buckets))
	}
	if buckets[0].Count != 2 || math.Abs(buckets[0].MeanResidual-0.5) > 1e-9 {
		t.Fatalf("band [0,7) = %+v, want count 2 mean 0.5", buckets[0])
	}
	if buckets[1].Count != 2 || math.Abs(buckets[1].MeanResidual+0.5) > 1e-9 {
		t.Fatalf("band [7,14) = %+v, want count 2 mean -0.5", buckets[1])
	}
}

func TestSignAgreementIgnoresPushes(t *testing.T) {
	t.Parallel()

	samples := []calibrationSample{
		{ratingDiff: 2, target: 5},
		{ratingDiff: -1, target: -3},
		{ratingDiff: 1, target: -2},
		{ratingDiff: 0, target: 4},
	}
	if got := signAgreement(samples); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Fatalf("sign agreement = %v, want 2/3", got)
	}
}
