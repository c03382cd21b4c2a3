// Package ratelimit implements an exact sliding-window-log rate limiter over a
// pluggable per-key store.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avagate/internal/observability"
	"github.com/vyrodovalexey/avagate/internal/ratelimit/store"
)

// Defaults for Config.
const (
	DefaultWindow     = 15 * time.Minute
	DefaultMax        = 100
	DefaultStatusCode = http.StatusTooManyRequests
	DefaultMessage    = "Too many requests, please try again later."
)

// Configuration errors.
var (
	ErrInvalidWindow     = errors.New("rate limit window must be positive")
	ErrInvalidMax        = errors.New("rate limit max must be positive")
	ErrInvalidStatusCode = errors.New("rate limit status code must be 4xx or 5xx")
	ErrNilStore          = errors.New("rate limit store is required")
)

// ErrRateLimitExceeded is reported when a key is over quota.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Config holds rate limiter configuration.
type Config struct {
	// Window is the sliding window duration.
	Window time.Duration

	// Max is the number of requests admitted per key within Window.
	Max int

	// StatusCode is written when a request is rejected.
	StatusCode int

	// Message is the rejection message.
	Message string

	// KeyFunc derives the client key. Defaults to ClientIPKey.
	KeyFunc KeyFunc

	// SkipSuccessfulRequests stops counting requests answered below 400.
	SkipSuccessfulRequests bool

	// SkipFailedRequests stops counting requests answered with 400 or above.
	SkipFailedRequests bool

	// FailOpen admits requests when the store fails. When false the
	// request is answered with 503.
	FailOpen bool

	// Headers enables the X-RateLimit-* response headers.
	Headers bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Window:     DefaultWindow,
		Max:        DefaultMax,
		StatusCode: DefaultStatusCode,
		Message:    DefaultMessage,
		KeyFunc:    ClientIPKey,
		FailOpen:   true,
		Headers:    true,
	}
}

// withDefaults fills zero optional fields.
func (c Config) withDefaults() Config {
	if c.StatusCode == 0 {
		c.StatusCode = DefaultStatusCode
	}
	if c.Message == "" {
		c.Message = DefaultMessage
	}
	if c.KeyFunc == nil {
		c.KeyFunc = ClientIPKey
	}
	return c
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Window <= 0 {
		errs = append(errs, ErrInvalidWindow)
	}
	if c.Max <= 0 {
		errs = append(errs, ErrInvalidMax)
	}
	if c.StatusCode != 0 && (c.StatusCode < 400 || c.StatusCode > 599) {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidStatusCode, c.StatusCode))
	}
	return errors.Join(errs...)
}

// Result represents the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAfter is the duration until the oldest counted request leaves
	// the window.
	ResetAfter time.Duration

	// RetryAfter is the duration to wait before retrying (when not allowed).
	RetryAfter time.Duration

	// RecordedAt is the timestamp stored for an admitted request.
	RecordedAt time.Time
}

// Limiter applies the sliding-window-log algorithm.
type Limiter struct {
	cfg     Config
	store   store.Store
	now     func() time.Time
	logger  observability.Logger
	metrics *Metrics
	warn    *rate.Sometimes
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(l *Limiter) {
		l.metrics = metrics
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a limiter. Invalid configuration is reported here.
func New(cfg Config, st store.Store, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrNilStore
	}

	l := &Limiter{
		cfg:    cfg.withDefaults(),
		store:  st,
		now:    time.Now,
		logger: observability.NopLogger(),
		warn:   &rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = NewMetrics("avagate")
	}

	return l, nil
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Allow evaluates one request for key. Stale timestamps are pruned before the
// count check; a rejected request is not recorded.
func (l *Limiter) Allow(ctx context.Context, key string) (*Result, error) {
	// Round(0) strips the monotonic reading so stored stamps compare by
	// wall clock across stores.
	now := l.now().Round(0)

	var result Result
	_, err := l.store.Update(ctx, key, l.cfg.Window, func(current []time.Time) ([]time.Time, error) {
		next, r := decide(current, now, l.cfg.Window, l.cfg.Max)
		result = r
		return next, nil
	})
	if err != nil {
		l.metrics.storeErrors.Inc()
		return nil, fmt.Errorf("rate limit store update: %w", err)
	}

	l.metrics.recordDecision(result.Allowed)
	return &result, nil
}

// Forget removes the timestamp recorded at for key.
func (l *Limiter) Forget(ctx context.Context, key string, at time.Time) error {
	_, err := l.store.Update(ctx, key, l.cfg.Window, func(current []time.Time) ([]time.Time, error) {
		next, _ := windowLog(current).without(at)
		return next, nil
	})
	if err != nil {
		l.metrics.storeErrors.Inc()
		return fmt.Errorf("rate limit store update: %w", err)
	}
	l.metrics.forgottenTotal.Inc()
	return nil
}

// Reset removes all state for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Delete(ctx, key)
}
