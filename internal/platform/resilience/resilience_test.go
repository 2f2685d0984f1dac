package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	t.Parallel()

	b := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, OpenTimeout: time.Minute, HalfOpenMaxReq: 1})

	for i := 0; i < 2; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		b.RecordFailure()
	}
	if got := b.State(); got != CircuitStateClosed {
		t.Fatalf("state after 2 failures = %s, want closed", got)
	}

	b.RecordFailure()
	if got := b.State(); got != CircuitStateOpen {
		t.Fatalf("state after threshold = %s, want open", got)
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("allow while open = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	t.Parallel()

	b := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: 10 * time.Millisecond, HalfOpenMaxReq: 2})
	clock := time.Now()
	b.now = func() time.Time { return clock }

	b.RecordFailure()
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("allow while open = %v, want ErrCircuitOpen", err)
	}

	clock = clock.Add(20 * time.Millisecond)
	if got := b.State(); got != CircuitStateHalfOpen {
		t.Fatalf("state after timeout = %s, want half_open", got)
	}

	for i := 0; i < 2; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
		b.RecordSuccess()
	}
	if got := b.State(); got != CircuitStateClosed {
		t.Fatalf("state after probes = %s, want closed", got)
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	b := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: 10 * time.Millisecond, HalfOpenMaxReq: 1})
	clock := time.Now()
	b.now = func() time.Time { return clock }

	b.RecordFailure()
	clock = clock.Add(20 * time.Millisecond)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe allow: %v", err)
	}
	b.RecordFailure()
	if got := b.State(); got != CircuitStateOpen {
		t.Fatalf("state after failed probe = %s, want open", got)
	}
}

func TestNormalizeCircuitBreakerConfigFillsDefaults(t *testing.T) {
	t.Parallel()

	got := NormalizeCircuitBreakerConfig(CircuitBreakerConfig{})
	want := DefaultCircuitBreakerConfig()
	if got.FailureThreshold != want.FailureThreshold || got.OpenTimeout != want.OpenTimeout || got.HalfOpenMaxReq != want.HalfOpenMaxReq {
		t.Fatalf("normalized = %+v, want defaults %+v", got, want)
	}
}

func TestSingleFlightSharesResult(t *testing.T) {
	t.Parallel()

	var g SingleFlight
	var calls int
	release := make(chan struct{})

	var wg sync.WaitGroup
	shared := make([]bool, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			val, err, wasShared := g.Do("quotes:2024-w5", func() (any, error) {
				calls++
				<-release
				return 42, nil
			})
			if err != nil {
				t.Errorf("do: %v", err)
			}
			if val != 42 {
				t.Errorf("val = %v, want 42", val)
			}
			shared[i] = wasShared
		}(i)
	}

	// Give the goroutines a chance to pile up on the same key.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("fn called %d times, want 1", calls)
	}
	sharedCount := 0
	for _, s := range shared {
		if s {
			sharedCount++
		}
	}
	if sharedCount != 3 {
		t.Fatalf("shared count = %d, want 3", sharedCount)
	}
}
