package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/pricelab/cfb-market/internal/domain/calibration"
)

const (
	gridStatusEvaluated = "evaluated"
	gridStatusResumed   = "resumed"
	gridStatusFailed    = "failed"

	defaultGridWorkers = 4
	maxGridWorkers     = 16
)

// gridPool is the worker pool the sweep dispatches combinations onto.
// Production uses ants; tests substitute a deterministic pool.
type gridPool interface {
	Submit(task func()) error
	Release()
}

func newAntsGridPool(size int) (gridPool, error) {
	return ants.NewPool(size)
}

type GridSearchInput struct {
	Season         int    `validate:"required,gte=1900"`
	ModelVersion   string `validate:"required"`
	FeatureVersion string `validate:"required"`
	SpreadVersion  string `validate:"required"`

	SoSWeights     []float64 `validate:"required,min=1"`
	ShrinkageBases []float64 `validate:"required,min=1"`
	Scale          float64
	MaxWorkers     int
	DryRun         bool
}

type GridSearchResult struct {
	State          string            `json:"state"`
	ComboCount     int               `json:"combo_count"`
	WorkerCount    int               `json:"worker_count"`
	EvaluatedCount int               `json:"evaluated_count"`
	ResumedCount   int               `json:"resumed_count"`
	FailedCount    int               `json:"failed_count"`
	GoCount        int               `json:"go_count"`
	Best           *GridComboResult  `json:"best,omitempty"`
	Combos         []GridComboResult `json:"combos"`
}

type GridComboResult struct {
	Params     calibration.ParamSet `json:"params"`
	Status     string               `json:"status"`
	Verdict    string               `json:"verdict,omitempty"`
	State      string               `json:"state,omitempty"`
	RMSE       float64              `json:"rmse"`
	R2         float64              `json:"r2"`
	Message    string               `json:"message,omitempty"`
	DurationMs int64                `json:"duration_ms"`
}

// SweepGrid evaluates every (SoS weight, shrinkage base) combination across a
// worker pool. Combinations already checkpointed under their parameter key
// are resumed, not recomputed, so an interrupted sweep picks up where it
// stopped. Each fresh result is persisted before the sweep moves on.
func (s *CalibrationService) SweepGrid(ctx context.Context, input GridSearchInput) (GridSearchResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.CalibrationService.SweepGrid")
	defer span.End()

	if s.calibrations == nil {
		return GridSearchResult{}, fmt.Errorf("%w: calibration repository is not configured", ErrDependencyUnavailable)
	}
	if err := validateBatchInput(input); err != nil {
		return GridSearchResult{}, err
	}

	dataset, err := s.loadDataset(ctx, CalibrateInput{
		Season:         input.Season,
		ModelVersion:   input.ModelVersion,
		FeatureVersion: input.FeatureVersion,
		SpreadVersion:  input.SpreadVersion,
	})
	if err != nil {
		return GridSearchResult{}, err
	}

	combos := make([]calibration.ParamSet, 0, len(input.SoSWeights)*len(input.ShrinkageBases))
	scale := input.Scale
	if scale == 0 {
		scale = defaultRatingScale
	}
	for _, sos := range input.SoSWeights {
		for _, shrink := range input.ShrinkageBases {
			combos = append(combos, calibration.ParamSet{SoSWeight: sos, ShrinkageBase: shrink, Scale: scale})
		}
	}

	workerCount := normalizeGridWorkerCount(input.MaxWorkers, len(combos))
	result := GridSearchResult{
		ComboCount:  len(combos),
		WorkerCount: workerCount,
		Combos:      make([]GridComboResult, 0, len(combos)),
	}
	if len(combos) == 0 {
		result.State = string(stateGridComplete)
		return result, nil
	}

	rows := make(chan GridComboResult, len(combos))

	var evaluatedCount atomic.Int32
	var resumedCount atomic.Int32
	var failedCount atomic.Int32

	pool, err := s.newGridPool(workerCount)
	if err != nil {
		return GridSearchResult{}, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	// A submission failure must not strand in-flight workers: the loop stops
	// submitting, and already-submitted combinations still run to completion
	// and land in the summary before the error is surfaced.
	var submitErr error
	var workers sync.WaitGroup
	for _, combo := range combos {
		combo := combo
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()

			start := time.Now()
			row := s.runGridCombo(ctx, dataset, input, combo)
			row.DurationMs = time.Since(start).Milliseconds()

			switch row.Status {
			case gridStatusEvaluated:
				evaluatedCount.Add(1)
			case gridStatusResumed:
				resumedCount.Add(1)
			default:
				failedCount.Add(1)
			}
			rows <- row
		}); err != nil {
			workers.Done()
			submitErr = fmt.Errorf("submit combination %s to worker pool: %w", combo.Key(), err)
			break
		}
	}

	workers.Wait()
	close(rows)

	for row := range rows {
		result.Combos = append(result.Combos, row)
	}
	sort.SliceStable(result.Combos, func(i, j int) bool {
		return result.Combos[i].Params.Key() < result.Combos[j].Params.Key()
	})

	result.EvaluatedCount = int(evaluatedCount.Load())
	result.ResumedCount = int(resumedCount.Load())
	result.FailedCount = int(failedCount.Load())
	for i := range result.Combos {
		combo := &result.Combos[i]
		if combo.Verdict == calibration.VerdictGo {
			result.GoCount++
		}
		if combo.Status == gridStatusFailed {
			continue
		}
		if result.Best == nil || comboRanksHigher(*combo, *result.Best) {
			result.Best = combo
		}
	}
	if submitErr != nil {
		s.logger.WarnContext(ctx, "grid sweep stopped early",
			"submitted", len(result.Combos),
			"combos", result.ComboCount,
			"error", submitErr,
		)
		return result, submitErr
	}
	result.State = string(stateGridComplete)

	s.logger.InfoContext(ctx, "grid sweep complete",
		"combos", result.ComboCount,
		"evaluated", result.EvaluatedCount,
		"resumed", result.ResumedCount,
		"failed", result.FailedCount,
		"go", result.GoCount,
	)
	return result, nil
}

func (s *CalibrationService) runGridCombo(ctx context.Context, dataset *calibrationDataset, input GridSearchInput, combo calibration.ParamSet) GridComboResult {
	row := GridComboResult{Params: combo}

	existing, found, err := s.calibrations.GetByKey(ctx, input.Season, input.ModelVersion, combo.Key())
	if err != nil {
		row.Status = gridStatusFailed
		row.Message = fmt.Sprintf("load checkpoint: %v", err)
		return row
	}
	if found {
		row.Status = gridStatusResumed
		row.Verdict = existing.Verdict
		row.RMSE = existing.Fit.RMSE
		row.R2 = existing.Fit.R2
		if existing.AbortedLowSlope {
			row.State = string(stateAbortedLowSlope)
		}
		return row
	}

	comboInput := CalibrateInput{
		Season:         input.Season,
		ModelVersion:   input.ModelVersion,
		FeatureVersion: input.FeatureVersion,
		SpreadVersion:  input.SpreadVersion,
		SoSWeight:      combo.SoSWeight,
		ShrinkageBase:  combo.ShrinkageBase,
		Scale:          combo.Scale,
		DryRun:         input.DryRun,
	}
	evalResult, persisted, err := s.evaluateCombination(ctx, dataset, comboInput)
	if err != nil {
		row.Status = gridStatusFailed
		row.Message = err.Error()
		return row
	}
	if !input.DryRun {
		if err := s.calibrations.InsertResult(ctx, persisted); err != nil {
			row.Status = gridStatusFailed
			row.Message = fmt.Sprintf("checkpoint combination: %v", err)
			return row
		}
	}

	row.Status = gridStatusEvaluated
	row.Verdict = evalResult.Verdict
	row.State = evalResult.State
	row.RMSE = evalResult.Fit.RMSE
	row.R2 = evalResult.Fit.R2
	return row
}

// comboRanksHigher orders sweep outcomes for the summary: verdict first,
// then lower walk-forward RMSE.
func comboRanksHigher(a, b GridComboResult) bool {
	ra, rb := verdictRank(a.Verdict), verdictRank(b.Verdict)
	if ra != rb {
		return ra > rb
	}
	return a.RMSE < b.RMSE
}

func verdictRank(verdict string) int {
	switch verdict {
	case calibration.VerdictGo:
		return 2
	case calibration.VerdictConditionalGo:
		return 1
	default:
		return 0
	}
}

func normalizeGridWorkerCount(requested, taskCount int) int {
	count := requested
	if count <= 0 {
		count = defaultGridWorkers
	}
	if count > maxGridWorkers {
		count = maxGridWorkers
	}
	if taskCount > 0 && count > taskCount {
		count = taskCount
	}
	if count < 1 {
		count = 1
	}
	return count
}
