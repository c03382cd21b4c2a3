package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/avagate/internal/observability"
)

// BreakerConfig configures a BreakerStore.
type BreakerConfig struct {
	// Name identifies the breaker in logs.
	Name string

	// Threshold is the minimum number of requests in an interval before the
	// failure ratio is evaluated; it also bounds half-open probes.
	Threshold int

	// FailureRatio trips the breaker once reached.
	FailureRatio float64

	// Timeout is how long the breaker stays open.
	Timeout time.Duration
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "ratelimit-store",
		Threshold:    5,
		FailureRatio: 0.5,
		Timeout:      10 * time.Second,
	}
}

// BreakerStore wraps a Store in a circuit breaker. While the breaker is open
// calls fail fast with ErrStoreUnavailable and the backend is not touched.
// Errors that say nothing about backend health do not count as failures:
// caller errors returned from an UpdateFunc, ErrConflict, and cancellation or
// deadline errors of the caller's own context.
type BreakerStore struct {
	next   Store
	cb     *gobreaker.CircuitBreaker
	logger observability.Logger
}

// NewBreakerStore wraps next.
func NewBreakerStore(next Store, cfg BreakerConfig, logger observability.Logger) *BreakerStore {
	defaults := DefaultBreakerConfig()
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.Threshold
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = defaults.FailureRatio
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	b := &BreakerStore{next: next, logger: logger}
	threshold := uint32(cfg.Threshold) //nolint:gosec // validated positive above

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: threshold,
		Interval:    cfg.Timeout,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= threshold && ratio >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			var ce callerError
			return err == nil || errors.As(err, &ce)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Info("store circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})

	return b
}

// callerError marks errors not attributable to the backend.
type callerError struct{ err error }

func (e callerError) Error() string { return e.err.Error() }
func (e callerError) Unwrap() error { return e.err }

// State returns the breaker state.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerStore) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		v, err := fn()
		if err != nil && !isBackendFailure(ctx, err) {
			var ce callerError
			if !errors.As(err, &ce) {
				err = callerError{err: err}
			}
		}
		return v, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	var ce callerError
	if errors.As(err, &ce) {
		return nil, ce.err
	}
	return v, err
}

// isBackendFailure reports whether err should count against the breaker.
func isBackendFailure(ctx context.Context, err error) bool {
	var ce callerError
	if errors.As(err, &ce) || errors.Is(err, ErrConflict) {
		return false
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return false
	}
	return true
}

// Get implements Store.
func (b *BreakerStore) Get(ctx context.Context, key string) ([]time.Time, error) {
	v, err := b.execute(ctx, func() (interface{}, error) {
		return b.next.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]time.Time), nil
}

// Put implements Store.
func (b *BreakerStore) Put(ctx context.Context, key string, stamps []time.Time, ttl time.Duration) error {
	_, err := b.execute(ctx, func() (interface{}, error) {
		return nil, b.next.Put(ctx, key, stamps, ttl)
	})
	return err
}

// Update implements Store.
func (b *BreakerStore) Update(
	ctx context.Context, key string, ttl time.Duration, fn UpdateFunc,
) ([]time.Time, error) {
	v, err := b.execute(ctx, func() (interface{}, error) {
		var fnErr error
		stored, err := b.next.Update(ctx, key, ttl, func(current []time.Time) ([]time.Time, error) {
			next, err := fn(current)
			fnErr = err
			return next, err
		})
		if err != nil && fnErr != nil && errors.Is(err, fnErr) {
			return nil, callerError{err: err}
		}
		return stored, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]time.Time), nil
}

// Delete implements Store.
func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := b.execute(ctx, func() (interface{}, error) {
		return nil, b.next.Delete(ctx, key)
	})
	return err
}

// Ping implements Pinger. An open breaker reports ErrStoreUnavailable without
// touching the backend.
func (b *BreakerStore) Ping(ctx context.Context) error {
	if b.cb.State() == gobreaker.StateOpen {
		return ErrStoreUnavailable
	}
	if p, ok := b.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close implements Store.
func (b *BreakerStore) Close() error {
	return b.next.Close()
}

var (
	_ Store  = (*BreakerStore)(nil)
	_ Pinger = (*BreakerStore)(nil)
)
