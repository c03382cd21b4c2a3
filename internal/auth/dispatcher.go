package auth

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avagate/internal/observability"
	"github.com/vyrodovalexey/avagate/internal/pipeline"
)

var authTracer = otel.Tracer("avagate/auth")

// State is a dispatcher state.
type State int

// Dispatcher states.
const (
	StateNotStarted State = iota
	StateTrying
	StateAuthenticated
	StateRejected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateTrying:
		return "trying"
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Status is the terminal outcome of a dispatch.
type Status int

// Dispatch outcomes.
const (
	StatusRejected Status = iota
	StatusAuthenticated
)

// String returns the status name.
func (s Status) String() string {
	if s == StatusAuthenticated {
		return "authenticated"
	}
	return "rejected"
}

// Result is the outcome of Dispatch.
type Result struct {
	Status Status

	// Identity is set when Status is StatusAuthenticated.
	Identity Identity

	// Method is the strategy that authenticated the request.
	Method Method

	// Reason is ReasonAuthFailed when Status is StatusRejected.
	Reason string
}

// Authenticated reports whether the request was authenticated.
func (r Result) Authenticated() bool {
	return r.Status == StatusAuthenticated
}

// Observer receives state transitions. index is the strategy position for
// StateTrying and StateAuthenticated, and -1 otherwise.
type Observer func(state State, index int, method Method)

// Dispatcher runs strategies in order until one succeeds.
type Dispatcher struct {
	strategies []Strategy
	skipPaths  []string
	logger     observability.Logger
	metrics    *Metrics
	observer   Observer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// WithObserver sets the state transition observer.
func WithObserver(observer Observer) Option {
	return func(d *Dispatcher) {
		d.observer = observer
	}
}

// NewDispatcher builds a dispatcher from cfg. Misconfiguration is reported
// here, before any request is served.
func NewDispatcher(cfg *Config, opts ...Option) (*Dispatcher, error) {
	strategies, err := cfg.Strategies()
	if err != nil {
		return nil, err
	}

	d, err := NewDispatcherWithStrategies(strategies, opts...)
	if err != nil {
		return nil, err
	}
	d.skipPaths = append([]string(nil), cfg.SkipPaths...)
	return d, nil
}

// NewDispatcherWithStrategies builds a dispatcher from prepared strategies.
func NewDispatcherWithStrategies(strategies []Strategy, opts ...Option) (*Dispatcher, error) {
	if len(strategies) == 0 {
		return nil, ErrNoStrategies
	}
	for _, s := range strategies {
		if s == nil {
			return nil, &ConfigError{Err: ErrMissingVerifier}
		}
	}

	d := &Dispatcher{
		strategies: append([]Strategy(nil), strategies...),
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = NewMetrics("avagate")
	}

	return d, nil
}

// Methods returns the configured methods in order.
func (d *Dispatcher) Methods() []Method {
	methods := make([]Method, len(d.strategies))
	for i, s := range d.strategies {
		methods[i] = s.Name()
	}
	return methods
}

// Dispatch tries each strategy in order. The first success wins; when every
// strategy fails the result is rejected with ReasonAuthFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, req *pipeline.Request) Result {
	start := time.Now()

	ctx, span := authTracer.Start(ctx, "auth.dispatch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("url.path", req.Path)),
	)
	defer span.End()

	logger := d.logger.WithContext(ctx)
	d.notify(StateNotStarted, -1, "")

	for i, s := range d.strategies {
		method := s.Name()
		d.notify(StateTrying, i, method)

		identity, err := s.Authenticate(ctx, req)
		d.metrics.RecordAttempt(method, err == nil)
		if err != nil {
			logger.Debug("authentication strategy failed",
				observability.String("method", string(method)),
				observability.Error(err),
			)
			continue
		}

		d.notify(StateAuthenticated, i, method)
		d.metrics.RecordDispatch(StatusAuthenticated, time.Since(start))
		span.SetAttributes(
			attribute.String("auth.method", string(method)),
			attribute.String("auth.outcome", StatusAuthenticated.String()),
		)
		span.SetStatus(codes.Ok, "")

		return Result{Status: StatusAuthenticated, Identity: identity, Method: method}
	}

	d.notify(StateRejected, -1, "")
	d.metrics.RecordDispatch(StatusRejected, time.Since(start))
	span.SetAttributes(attribute.String("auth.outcome", StatusRejected.String()))
	span.SetStatus(codes.Error, ReasonAuthFailed)

	return Result{Status: StatusRejected, Reason: ReasonAuthFailed}
}

// ShouldSkip reports whether path bypasses authentication.
func (d *Dispatcher) ShouldSkip(path string) bool {
	for _, p := range d.skipPaths {
		if matchPath(p, path) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) notify(state State, index int, method Method) {
	if d.observer != nil {
		d.observer(state, index, method)
	}
}
