package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pricelab/cfb-market/internal/domain/calibration"
	"github.com/pricelab/cfb-market/internal/domain/feature"
	"github.com/pricelab/cfb-market/internal/domain/game"
	"github.com/pricelab/cfb-market/internal/domain/market"
	"github.com/pricelab/cfb-market/internal/domain/rating"
	"github.com/pricelab/cfb-market/internal/platform/linalg"
	"github.com/pricelab/cfb-market/internal/platform/logging"
)

// calibrationState names the phases of the auto-rescale loop. Transitions are
// guarded by the numeric thresholds below, never by open-ended iteration.
type calibrationState string

const (
	stateInitialFit      calibrationState = "initial-fit"
	stateRescaling       calibrationState = "rescaling"
	stateConverged       calibrationState = "converged"
	stateAbortedLowSlope calibrationState = "aborted-low-slope"
	stateGridComplete    calibrationState = "grid-complete"
)

const (
	slopeTargetLow  = 0.9
	slopeTargetHigh = 1.1
	// A rating-difference slope this far under 1.0 signals rating
	// compression, not a scaling problem. Inflating the multiplier would
	// hide it, so the loop stops with the factor untouched.
	slopeAbortFloor      = 0.6
	maxRescaleIterations = 5

	gateStrictRMSE  = 9.0
	gateStrictR2    = 0.20
	gateRelaxedRMSE = 9.5
	gateRelaxedR2   = 0.12

	// Mean walk-forward residual allowed inside each spread band before
	// the bucket-bias gate trips.
	bucketBiasTolerance = 2.0

	// Strict evaluation rows need this many books behind the consensus.
	strictMinBooks = 3

	minCalibrationSamples = 8
	minWalkForwardTrain   = 8
)

// Evaluation-set Elastic-Net regularization. Heavier than the OLS baseline
// so walk-forward stats reflect a conservative fit, but light enough that a
// well-calibrated slope can still sit inside the [0.9, 1.1] gate.
var walkForwardNetConfig = linalg.ElasticNetConfig{Alpha: 0.05, L1Ratio: 0.5}

var residualBands = [][2]float64{{0, 7}, {7, 14}}

type CalibrationService struct {
	games        game.Repository
	markets      market.Repository
	features     feature.Repository
	ratings      rating.Repository
	calibrations calibration.Repository
	solver       linalg.Solver
	logger       *logging.Logger
	now          func() time.Time
	newGridPool  func(size int) (gridPool, error)
}

func NewCalibrationService(
	games game.Repository,
	markets market.Repository,
	features feature.Repository,
	ratings rating.Repository,
	calibrations calibration.Repository,
	solver linalg.Solver,
	logger *logging.Logger,
) *CalibrationService {
	if solver == nil {
		solver = linalg.NormalEquationsSolver{}
	}
	return &CalibrationService{
		games:        games,
		markets:      markets,
		features:     features,
		ratings:      ratings,
		calibrations: calibrations,
		solver:       solver,
		logger:       logger,
		now:          time.Now,
		newGridPool:  newAntsGridPool,
	}
}

type CalibrateInput struct {
	Season         int    `validate:"required,gte=1900"`
	ModelVersion   string `validate:"required"`
	FeatureVersion string `validate:"required"`
	SpreadVersion  string `validate:"required"`
	SoSWeight      float64
	ShrinkageBase  float64
	Scale          float64
	DryRun         bool
}

func (in CalibrateInput) params() calibration.ParamSet {
	p := calibration.ParamSet{
		SoSWeight:     in.SoSWeight,
		ShrinkageBase: in.ShrinkageBase,
		Scale:         in.Scale,
	}
	if p.SoSWeight == 0 {
		p.SoSWeight = defaultSoSWeight
	}
	if p.ShrinkageBase == 0 {
		p.ShrinkageBase = defaultShrinkageBase
	}
	if p.Scale == 0 {
		p.Scale = defaultRatingScale
	}
	return p
}

type CalibrationRunResult struct {
	State         string                       `json:"state"`
	Params        calibration.ParamSet         `json:"params"`
	InitialSlope  float64                      `json:"initial_slope"`
	Iterations    int                          `json:"iterations"`
	Coefficients  calibration.Coefficients     `json:"coefficients"`
	Fit           calibration.FitStats         `json:"fit"`
	Buckets       []calibration.ResidualBucket `json:"buckets"`
	GatesStrict   calibration.GateChecks       `json:"gates_strict"`
	GatesRelaxed  calibration.GateChecks       `json:"gates_relaxed"`
	Verdict       string                       `json:"verdict"`
	SignAgreement float64                      `json:"sign_agreement"`
	SampleCount   int                          `json:"sample_count"`
	StrictCount   int                          `json:"strict_count"`
}

// calibrationSample is one game's regression row: market-implied home margin
// against the unscaled rating difference and the home team's field edge.
type calibrationSample struct {
	gameID     string
	week       int
	ratingDiff float64
	homeField  float64
	target     float64
	strict     bool
}

// calibrationDataset rebuilds the regression rows for any calibration scale
// so the rescale loop can re-run the rating computation rather than assume
// scale linearity.
type calibrationDataset struct {
	featureRows []feature.TeamGame
	gameByID    map[string]game.Game
	games       []game.Game
	spreads     map[string]market.ConsensusLine
	homeFields  map[string]float64
}

func (d *calibrationDataset) samplesAt(params calibration.ParamSet) []calibrationSample {
	ratings, _ := computeTeamRatings(d.featureRows, d.gameByID, params)

	samples := make([]calibrationSample, 0, len(d.spreads))
	for _, g := range d.games {
		line, ok := d.spreads[g.ID]
		if !ok || line.Value == nil {
			continue
		}
		homeRating, homeOK := ratings[g.HomeTeamID]
		awayRating, awayOK := ratings[g.AwayTeamID]
		if !homeOK || !awayOK {
			continue
		}

		// Consensus spreads are favorite-centric (always <= 0); fold the
		// favored side back into a home-margin target.
		target := *line.Value
		if line.FavoredSide == market.SideHome {
			target = -target
		}

		hfa := 0.0
		if !g.NeutralSite {
			hfa = rating.DefaultHomeField
			if v, ok := d.homeFields[g.HomeTeamID]; ok {
				hfa = v
			}
		}

		samples = append(samples, calibrationSample{
			gameID:     g.ID,
			week:       g.Week,
			ratingDiff: homeRating - awayRating,
			homeField:  hfa,
			target:     target,
			strict:     line.BookCount >= strictMinBooks && line.Window == market.WindowPreKick,
		})
	}
	sort.Slice(samples, func(i, j int) bool {
		if samples[i].week != samples[j].week {
			return samples[i].week < samples[j].week
		}
		return samples[i].gameID < samples[j].gameID
	})
	return samples
}

// Calibrate runs one hyperparameter combination end to end: baseline OLS,
// the auto-rescale state machine, walk-forward Elastic-Net evaluation on the
// strict and broad sets, gate checks, and verdict. The result row is
// persisted unless dry-run.
func (s *CalibrationService) Calibrate(ctx context.Context, input CalibrateInput) (CalibrationRunResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.CalibrationService.Calibrate")
	defer span.End()

	if s.games == nil || s.markets == nil || s.features == nil || s.ratings == nil || s.calibrations == nil {
		return CalibrationRunResult{}, fmt.Errorf("%w: calibration service is not fully configured", ErrDependencyUnavailable)
	}
	if err := validateBatchInput(input); err != nil {
		return CalibrationRunResult{}, err
	}

	dataset, err := s.loadDataset(ctx, input)
	if err != nil {
		return CalibrationRunResult{}, err
	}

	result, row, err := s.evaluateCombination(ctx, dataset, input)
	if err != nil {
		return result, err
	}

	if !input.DryRun {
		if err := s.calibrations.InsertResult(ctx, row); err != nil {
			return result, fmt.Errorf("insert calibration result key=%s: %w", row.Params.Key(), err)
		}
	}

	s.logger.InfoContext(ctx, "calibration combination evaluated",
		"params", row.Params.Key(),
		"state", result.State,
		"verdict", result.Verdict,
		"rmse", result.Fit.RMSE,
		"sign_agreement", result.SignAgreement,
	)
	return result, nil
}

func (s *CalibrationService) loadDataset(ctx context.Context, input CalibrateInput) (*calibrationDataset, error) {
	featureRows, err := s.features.ListBySeason(ctx, input.Season, input.FeatureVersion)
	if err != nil {
		return nil, fmt.Errorf("list features season=%d version=%s: %w", input.Season, input.FeatureVersion, err)
	}
	if len(featureRows) == 0 {
		return nil, fmt.Errorf("%w: no feature rows for season=%d version=%s", ErrNotFound, input.Season, input.FeatureVersion)
	}

	games, err := s.games.ListBySeason(ctx, input.Season)
	if err != nil {
		return nil, fmt.Errorf("list games season=%d: %w", input.Season, err)
	}
	gameByID := make(map[string]game.Game, len(games))
	for _, g := range games {
		gameByID[g.ID] = g
	}

	lines, err := s.markets.ListConsensusBySeason(ctx, input.Season, market.TypeSpread, input.SpreadVersion)
	if err != nil {
		return nil, fmt.Errorf("list consensus spreads season=%d version=%s: %w", input.Season, input.SpreadVersion, err)
	}
	spreads := make(map[string]market.ConsensusLine, len(lines))
	for _, line := range lines {
		spreads[line.GameID] = line
	}

	homeFields := make(map[string]float64)
	if seasonRatings, err := s.ratings.ListBySeason(ctx, input.Season, input.ModelVersion); err == nil {
		for _, r := range seasonRatings {
			if r.HomeField.Shrunk != 0 {
				homeFields[r.TeamID] = r.HomeField.Shrunk
			}
		}
	}

	return &calibrationDataset{
		featureRows: featureRows,
		gameByID:    gameByID,
		games:       games,
		spreads:     spreads,
		homeFields:  homeFields,
	}, nil
}

// evaluateCombination is the shared single-combination path used by Calibrate
// and the grid sweep. It never writes; persistence stays with the callers.
func (s *CalibrationService) evaluateCombination(ctx context.Context, dataset *calibrationDataset, input CalibrateInput) (CalibrationRunResult, calibration.Result, error) {
	params := input.params()

	rescale, err := s.runRescaleLoop(dataset, params)
	if err != nil {
		return CalibrationRunResult{}, calibration.Result{}, err
	}

	result := CalibrationRunResult{
		State:        string(rescale.state),
		Params:       rescale.params,
		InitialSlope: rescale.initialSlope,
		Iterations:   rescale.iterations,
		Coefficients: rescale.coeffs,
		Fit:          rescale.fit,
	}

	samples := dataset.samplesAt(rescale.params)
	result.SampleCount = len(samples)
	result.SignAgreement = signAgreement(samples)

	if rescale.state == stateAbortedLowSlope {
		result.Verdict = calibration.VerdictNoGo
	} else {
		strictSamples := filterStrict(samples)
		result.StrictCount = len(strictSamples)

		strictEval, strictErr := walkForwardEval(strictSamples)
		broadEval, broadErr := walkForwardEval(samples)
		if broadErr != nil {
			return result, calibration.Result{}, broadErr
		}
		if strictErr != nil {
			if !errors.Is(strictErr, ErrNoSignal) {
				return result, calibration.Result{}, strictErr
			}
			// Too few high-quality rows: set A cannot pass, set B still decides
			// between conditional and no-go.
			strictEval = evalOutcome{}
		}

		result.Buckets = broadEval.buckets
		result.GatesStrict = checkGates(strictEval, gateStrictRMSE, gateStrictR2)
		result.GatesRelaxed = checkGates(broadEval, gateRelaxedRMSE, gateRelaxedR2)
		switch {
		case result.GatesStrict.AllPass():
			result.Verdict = calibration.VerdictGo
		case result.GatesRelaxed.AllPass():
			result.Verdict = calibration.VerdictConditionalGo
		default:
			result.Verdict = calibration.VerdictNoGo
		}
	}

	row := calibration.Result{
		Params:          rescale.params,
		DatasetID:       fmt.Sprintf("season-%d-%s", input.Season, input.SpreadVersion),
		Season:          input.Season,
		ModelVersion:    input.ModelVersion,
		Coefficients:    rescale.coeffs,
		Fit:             rescale.fit,
		Buckets:         result.Buckets,
		GatesStrict:     result.GatesStrict,
		GatesRelaxed:    result.GatesRelaxed,
		Verdict:         result.Verdict,
		AbortedLowSlope: rescale.state == stateAbortedLowSlope,
		InitialSlope:    rescale.initialSlope,
		CreatedAt:       s.now(),
	}
	return result, row, nil
}

type rescaleOutcome struct {
	state        calibrationState
	params       calibration.ParamSet
	initialSlope float64
	iterations   int
	coeffs       calibration.Coefficients
	fit          calibration.FitStats
}

// runRescaleLoop drives the {initial-fit, rescaling, converged,
// aborted-low-slope} state machine. Each rescale multiplies the calibration
// factor by the observed slope and re-runs the rating computation before
// refitting.
func (s *CalibrationService) runRescaleLoop(dataset *calibrationDataset, params calibration.ParamSet) (rescaleOutcome, error) {
	out := rescaleOutcome{state: stateInitialFit, params: params}

	coeffs, fit, err := s.fitBaseline(dataset.samplesAt(params))
	if err != nil {
		return out, err
	}
	out.coeffs, out.fit = coeffs, fit
	out.initialSlope = coeffs.RatingDiff

	if out.initialSlope < slopeAbortFloor {
		out.state = stateAbortedLowSlope
		return out, nil
	}

	for out.iterations = 0; out.iterations < maxRescaleIterations; out.iterations++ {
		if out.coeffs.RatingDiff >= slopeTargetLow && out.coeffs.RatingDiff <= slopeTargetHigh {
			out.state = stateConverged
			return out, nil
		}
		out.state = stateRescaling
		out.params.Scale *= out.coeffs.RatingDiff

		coeffs, fit, err := s.fitBaseline(dataset.samplesAt(out.params))
		if err != nil {
			return out, err
		}
		out.coeffs, out.fit = coeffs, fit
	}
	if out.coeffs.RatingDiff >= slopeTargetLow && out.coeffs.RatingDiff <= slopeTargetHigh {
		out.state = stateConverged
	}
	return out, nil
}

// fitBaseline solves the normal-equations OLS of the market target on
// [1, ratingDiff, homeField].
func (s *CalibrationService) fitBaseline(samples []calibrationSample) (calibration.Coefficients, calibration.FitStats, error) {
	if len(samples) < minCalibrationSamples {
		return calibration.Coefficients{}, calibration.FitStats{},
			fmt.Errorf("%w: %d priced games, need %d for calibration", ErrNoSignal, len(samples), minCalibrationSamples)
	}

	rows := make([][]float64, len(samples))
	y := make([]float64, len(samples))
	for i, sm := range samples {
		rows[i] = []float64{1, sm.ratingDiff, sm.homeField}
		y[i] = sm.target
	}

	beta, err := s.solver.Solve(rows, y)
	if err != nil {
		if errors.Is(err, linalg.ErrSingular) {
			return calibration.Coefficients{}, calibration.FitStats{},
				fmt.Errorf("%w: singular calibration design", ErrNoSignal)
		}
		return calibration.Coefficients{}, calibration.FitStats{}, fmt.Errorf("solve baseline: %w", err)
	}

	coeffs := calibration.Coefficients{Intercept: beta[0], RatingDiff: beta[1], HomeField: beta[2]}
	preds := make([]float64, len(samples))
	for i, sm := range samples {
		preds[i] = beta[0] + beta[1]*sm.ratingDiff + beta[2]*sm.homeField
	}
	return coeffs, fitStats(y, preds), nil
}

type evalOutcome struct {
	fit     calibration.FitStats
	slope   float64
	hfaCoef float64
	buckets []calibration.ResidualBucket
	valid   bool
}

// walkForwardEval trains a heavier-regularized Elastic-Net on weeks strictly
// before each evaluation week and scores only out-of-sample predictions.
// Coefficient signs come from a final fit on the full set.
func walkForwardEval(samples []calibrationSample) (evalOutcome, error) {
	if len(samples) < minWalkForwardTrain*2 {
		return evalOutcome{}, fmt.Errorf("%w: %d samples, need %d for walk-forward evaluation",
			ErrNoSignal, len(samples), minWalkForwardTrain*2)
	}

	var yOut, predOut, targetOut []float64
	for i := 0; i < len(samples); {
		week := samples[i].week
		j := i
		for j < len(samples) && samples[j].week == week {
			j++
		}
		train := samples[:i]
		if len(train) >= minWalkForwardTrain {
			beta, intercept, err := fitNet(train)
			if err == nil {
				for _, sm := range samples[i:j] {
					pred := intercept + beta[0]*sm.ratingDiff + beta[1]*sm.homeField
					yOut = append(yOut, sm.target)
					predOut = append(predOut, pred)
					targetOut = append(targetOut, sm.target)
				}
			}
		}
		i = j
	}
	if len(yOut) == 0 {
		return evalOutcome{}, fmt.Errorf("%w: no out-of-sample weeks in walk-forward evaluation", ErrNoSignal)
	}

	beta, _, err := fitNet(samples)
	if err != nil {
		return evalOutcome{}, err
	}

	return evalOutcome{
		fit:     fitStats(yOut, predOut),
		slope:   beta[0],
		hfaCoef: beta[1],
		buckets: residualBuckets(targetOut, yOut, predOut),
		valid:   true,
	}, nil
}

func fitNet(samples []calibrationSample) ([]float64, float64, error) {
	rows := make([][]float64, len(samples))
	y := make([]float64, len(samples))
	for i, sm := range samples {
		rows[i] = []float64{sm.ratingDiff, sm.homeField}
		y[i] = sm.target
	}
	return linalg.ElasticNet(rows, y, walkForwardNetConfig)
}

func fitStats(y, preds []float64) calibration.FitStats {
	var ssRes, ssTot, mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	for i := range y {
		r := y[i] - preds[i]
		ssRes += r * r
		d := y[i] - mean
		ssTot += d * d
	}
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	return calibration.FitStats{
		RMSE:    math.Sqrt(ssRes / float64(len(y))),
		R2:      r2,
		Samples: len(y),
	}
}

// residualBuckets aggregates mean out-of-sample residual per absolute-spread
// band so systematic bias in common lines is visible separately from RMSE.
func residualBuckets(targets, y, preds []float64) []calibration.ResidualBucket {
	out := make([]calibration.ResidualBucket, len(residualBands))
	sums := make([]float64, len(residualBands))
	for i, band := range residualBands {
		out[i] = calibration.ResidualBucket{LowSpread: band[0], HighSpread: band[1]}
	}
	for i := range targets {
		abs := math.Abs(targets[i])
		for b, band := range residualBands {
			if abs >= band[0] && abs < band[1] {
				sums[b] += y[i] - preds[i]
				out[b].Count++
			}
		}
	}
	for b := range out {
		if out[b].Count > 0 {
			out[b].MeanResidual = sums[b] / float64(out[b].Count)
		}
	}
	return out
}

func checkGates(eval evalOutcome, maxRMSE, minR2 float64) calibration.GateChecks {
	if !eval.valid {
		return calibration.GateChecks{}
	}
	gates := calibration.GateChecks{
		RMSE:          eval.fit.RMSE <= maxRMSE,
		R2:            eval.fit.R2 >= minR2,
		Slope:         eval.slope >= slopeTargetLow && eval.slope <= slopeTargetHigh,
		SignRating:    eval.slope > 0,
		SignHomeField: eval.hfaCoef > 0,
		BucketBias:    true,
	}
	for _, bucket := range eval.buckets {
		if bucket.Count > 0 && math.Abs(bucket.MeanResidual) > bucketBiasTolerance {
			gates.BucketBias = false
		}
	}
	return gates
}

func filterStrict(samples []calibrationSample) []calibrationSample {
	out := make([]calibrationSample, 0, len(samples))
	for _, sm := range samples {
		if sm.strict {
			out = append(out, sm)
		}
	}
	return out
}

// signAgreement is the diagnostic-only canary: the share of priced games
// where the rating difference and the market margin point the same way. It
// never gates the run.
func signAgreement(samples []calibrationSample) float64 {
	var agree, total int
	for _, sm := range samples {
		if sm.ratingDiff == 0 || sm.target == 0 {
			continue
		}
		total++
		if (sm.ratingDiff > 0) == (sm.target > 0) {
			agree++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(agree) / float64(total)
}
