package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pricelab/cfb-market/internal/domain/calibration"
	"github.com/pricelab/cfb-market/internal/platform/logging"
)

func TestSweepGridResumesCheckpointedCombinations(t *testing.T) {
	t.Parallel()

	games, markets, features, ratings := calibrationFixture(t, 1.0)
	calibrations := &stubCalibrationRepo{}

	checkpointed := calibration.ParamSet{SoSWeight: 0.5, ShrinkageBase: 4, Scale: 3}
	if err := calibrations.InsertResult(context.Background(), calibration.Result{
		Params:       checkpointed,
		Season:       2024,
		ModelVersion: "m1",
		Verdict:      calibration.VerdictNoGo,
		Fit:          calibration.FitStats{RMSE: 11.2, R2: 0.05},
		CreatedAt:    time.Now(),
	}); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	svc := NewCalibrationService(games, markets, features, ratings, calibrations, nil, logging.NewNop())
	result, err := svc.SweepGrid(context.Background(), GridSearchInput{
		Season:         2024,
		ModelVersion:   "m1",
		FeatureVersion: "fv1",
		SpreadVersion:  "sp1",
		SoSWeights:     []float64{0.4, 0.5},
		ShrinkageBases: []float64{4, 6},
		Scale:          3,
		MaxWorkers:     2,
	})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if result.State != string(stateGridComplete) {
		t.Fatalf("state = %s, want grid-complete", result.State)
	}
	if result.ComboCount != 4 {
		t.Fatalf("combos = %d, want 4", result.ComboCount)
	}
	if result.ResumedCount != 1 {
		t.Fatalf("resumed = %d, want the checkpointed combination only", result.ResumedCount)
	}
	if result.EvaluatedCount != 3 {
		t.Fatalf("evaluated = %d, want 3", result.EvaluatedCount)
	}
	if result.FailedCount != 0 {
		t.Fatalf("failed = %d, want 0", result.FailedCount)
	}
	// 1 seeded + 3 freshly persisted.
	if calibrations.count() != 4 {
		t.Fatalf("persisted rows = %d, want 4", calibrations.count())
	}

	var resumed *GridComboResult
	for i := range result.Combos {
		if result.Combos[i].Params == checkpointed {
			resumed = &result.Combos[i]
		}
	}
	if resumed == nil {
		t.Fatal("checkpointed combination missing from summary")
	}
	if resumed.Status != gridStatusResumed || resumed.Verdict != calibration.VerdictNoGo {
		t.Fatalf("resumed combo = %+v, want resumed with carried NO_GO verdict", resumed)
	}

	if result.GoCount < 1 {
		t.Fatalf("go count = %d, want at least one passing combination", result.GoCount)
	}
	if result.Best == nil || result.Best.Verdict != calibration.VerdictGo {
		t.Fatalf("best = %+v, want a GO combination ranked first", result.Best)
	}
}

func TestSweepGridDryRunDoesNotCheckpoint(t *testing.T) {
	t.Parallel()

	games, markets, features, ratings := calibrationFixture(t, 1.0)
	calibrations := &stubCalibrationRepo{}

	svc := NewCalibrationService(games, markets, features, ratings, calibrations, nil, logging.NewNop())
	result, err := svc.SweepGrid(context.Background(), GridSearchInput{
		Season:         2024,
		ModelVersion:   "m1",
		FeatureVersion: "fv1",
		SpreadVersion:  "sp1",
		SoSWeights:     []float64{0.5},
		ShrinkageBases: []float64{4},
		Scale:          3,
		DryRun:         true,
	})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.EvaluatedCount != 1 {
		t.Fatalf("evaluated = %d, want 1", result.EvaluatedCount)
	}
	if calibrations.count() != 0 {
		t.Fatalf("dry run persisted %d rows", calibrations.count())
	}
}

// failingGridPool runs the first allowed submissions inline and rejects the
// rest, standing in for a pool that cannot accept more work mid-sweep.
type failingGridPool struct {
	allowed   int
	submitted int
}

func (p *failingGridPool) Submit(task func()) error {
	if p.submitted >= p.allowed {
		return errors.New("pool is full")
	}
	p.submitted++
	task()
	return nil
}

func (p *failingGridPool) Release() {}

func TestSweepGridDrainsWorkersOnSubmitFailure(t *testing.T) {
	t.Parallel()

	games, markets, features, ratings := calibrationFixture(t, 1.0)
	calibrations := &stubCalibrationRepo{}

	svc := NewCalibrationService(games, markets, features, ratings, calibrations, nil, logging.NewNop())
	svc.newGridPool = func(size int) (gridPool, error) {
		return &failingGridPool{allowed: 1}, nil
	}

	result, err := svc.SweepGrid(context.Background(), GridSearchInput{
		Season:         2024,
		ModelVersion:   "m1",
		FeatureVersion: "fv1",
		SpreadVersion:  "sp1",
		SoSWeights:     []float64{0.4, 0.5},
		ShrinkageBases: []float64{4},
		Scale:          3,
		MaxWorkers:     2,
	})
	if err == nil {
		t.Fatal("expected submit failure to surface")
	}

	// The combination submitted before the failure must still be collected
	// and checkpointed, not dropped on the floor.
	if result.EvaluatedCount != 1 {
		t.Fatalf("evaluated = %d, want the pre-failure combination", result.EvaluatedCount)
	}
	if len(result.Combos) != 1 {
		t.Fatalf("combos = %d, want 1", len(result.Combos))
	}
	if calibrations.count() != 1 {
		t.Fatalf("persisted rows = %d, want 1", calibrations.count())
	}
	if result.State == string(stateGridComplete) {
		t.Fatalf("state = %s, must not report a complete sweep", result.State)
	}
}

func TestSweepGridValidatesGridAxes(t *testing.T) {
	t.Parallel()

	games, markets, features, ratings := calibrationFixture(t, 1.0)
	svc := NewCalibrationService(games, markets, features, ratings, &stubCalibrationRepo{}, nil, logging.NewNop())

	_, err := svc.SweepGrid(context.Background(), GridSearchInput{
		Season:         2024,
		ModelVersion:   "m1",
		FeatureVersion: "fv1",
		SpreadVersion:  "sp1",
		ShrinkageBases: []float64{4},
	})
	if err == nil {
		t.Fatal("expected validation error for empty SoS axis")
	}
}

func TestNormalizeGridWorkerCount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		requested, tasks, want int
	}{
		{0, 10, defaultGridWorkers},
		{-3, 10, defaultGridWorkers},
		{100, 100, maxGridWorkers},
		{8, 2, 2},
		{1, 0, 1},
	}
	for _, tc := range cases {
		if got := normalizeGridWorkerCount(tc.requested, tc.tasks); got != tc.want {
			t.Fatalf("normalizeGridWorkerCount(%d, %d) = %d, want %d", tc.requested, tc.tasks, got, tc.want)
		}
	}
}
