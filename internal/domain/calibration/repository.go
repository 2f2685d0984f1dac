package calibration

import "context"

type Repository interface {
	ListBySeason(ctx context.Context, season int, modelVersion string) ([]Result, error)
	// GetByKey looks up a checkpointed combination so an interrupted sweep
	// can resume without recomputing it.
	GetByKey(ctx context.Context, season int, modelVersion, paramKey string) (Result, bool, error)
	InsertResult(ctx context.Context, item Result) error
}
