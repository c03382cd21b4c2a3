package pipeline

import (
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avagate/internal/observability"
)

var pipelineTracer = otel.Tracer("avagate/pipeline")

// Next continues the pipeline with the following unit. Calling it more than
// once has no effect.
type Next func()

// Middleware is one unit of the pipeline. A unit short-circuits by returning
// without calling next.
type Middleware interface {
	Handle(req *Request, res Response, next Next)
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(req *Request, res Response, next Next)

// Handle implements Middleware.
func (f MiddlewareFunc) Handle(req *Request, res Response, next Next) {
	f(req, res, next)
}

// Named is implemented by units that report a name in outcomes and logs.
type Named interface {
	Name() string
}

type namedUnit struct {
	name string
	fn   MiddlewareFunc
}

func (n namedUnit) Handle(req *Request, res Response, next Next) { n.fn(req, res, next) }
func (n namedUnit) Name() string                                 { return n.name }

// NamedFunc returns a named unit built from fn.
func NamedFunc(name string, fn MiddlewareFunc) Middleware {
	return namedUnit{name: name, fn: fn}
}

// Outcome describes how a pipeline execution ended.
type Outcome struct {
	// Response is the response the units wrote to.
	Response Response

	// Completed is true when every unit invoked its continuation.
	Completed bool

	// StoppedAt is the index of the unit that short-circuited, or -1.
	StoppedAt int

	// StoppedBy is the name of the unit that short-circuited, if known.
	StoppedBy string
}

// Status returns the response status code.
func (o *Outcome) Status() int {
	return o.Response.Status()
}

// Pipeline runs an ordered list of middleware units. Units must be added
// before the pipeline starts serving; Process is safe for concurrent use.
type Pipeline struct {
	units  []Middleware
	logger observability.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Use appends units.
func (p *Pipeline) Use(units ...Middleware) *Pipeline {
	for _, u := range units {
		if u != nil {
			p.units = append(p.units, u)
		}
	}
	return p
}

// UseFunc appends a function unit.
func (p *Pipeline) UseFunc(fn MiddlewareFunc) *Pipeline {
	return p.Use(fn)
}

// Len returns the number of units.
func (p *Pipeline) Len() int {
	return len(p.units)
}

// Process runs req through the pipeline against a fresh Recorder.
func (p *Pipeline) Process(req *Request) *Outcome {
	return p.ProcessWith(req, NewRecorder())
}

// ProcessWith runs req through the pipeline writing to res.
func (p *Pipeline) ProcessWith(req *Request, res Response) *Outcome {
	p.assignRequestID(req)

	ctx, span := pipelineTracer.Start(req.Context(), "pipeline.process",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
		),
	)
	defer span.End()
	req.SetContext(ctx)

	out := &Outcome{Response: res, StoppedAt: -1}
	p.run(0, req, res, out)

	if !out.Completed && out.StoppedAt >= 0 {
		out.StoppedBy = unitName(p.units[out.StoppedAt], out.StoppedAt)
		p.logger.WithContext(ctx).Debug("pipeline short-circuited",
			observability.String("unit", out.StoppedBy),
			observability.Int("status", res.Status()),
		)
		span.SetAttributes(attribute.String("pipeline.stopped_by", out.StoppedBy))
	}
	span.SetAttributes(attribute.Int("http.response.status_code", res.Status()))

	return out
}

func (p *Pipeline) run(i int, req *Request, res Response, out *Outcome) {
	if i >= len(p.units) {
		out.Completed = true
		return
	}

	called := false
	p.units[i].Handle(req, res, func() {
		if called {
			return
		}
		called = true
		p.run(i+1, req, res, out)
	})

	if !called && out.StoppedAt < 0 {
		out.StoppedAt = i
	}
}

func (p *Pipeline) assignRequestID(req *Request) {
	attrs := req.Attributes()
	if attrs.GetString(AttrRequestID) != "" {
		return
	}

	id := req.Header.Get(HeaderRequestID)
	if id == "" {
		id = uuid.New().String()
	}
	attrs.Set(AttrRequestID, id)
	req.SetContext(observability.ContextWithRequestID(req.Context(), id))
}

func unitName(u Middleware, index int) string {
	if n, ok := u.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("unit[%d]", index)
}
