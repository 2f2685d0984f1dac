package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrNoSignal marks entities with insufficient input data. Consumers must
	// treat the entity as unpriced, never as zero.
	ErrNoSignal = errors.New("no signal")
)
