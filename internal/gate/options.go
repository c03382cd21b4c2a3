package gate

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/avagate/internal/auth"
	"github.com/vyrodovalexey/avagate/internal/observability"
	"github.com/vyrodovalexey/avagate/internal/ratelimit/store"
)

// Option is a functional option for configuring the gate.
type Option func(*Gate)

// WithLogger sets the logger for the gate and every unit it builds.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithApp sets the handler that serves requests admitted by every unit.
func WithApp(app http.Handler) Option {
	return func(g *Gate) {
		g.app = app
	}
}

// WithPasswordVerifier overrides the configured users for password-pair
// credentials.
func WithPasswordVerifier(verify auth.PasswordVerifier) Option {
	return func(g *Gate) {
		g.passwordVerifier = verify
	}
}

// WithBearerVerifier overrides the configured token table for opaque bearer
// credentials.
func WithBearerVerifier(verify auth.BearerVerifier) Option {
	return func(g *Gate) {
		g.bearerVerifier = verify
	}
}

// WithCustomVerifier sets the verifier for the custom method.
func WithCustomVerifier(verify auth.CustomVerifier) Option {
	return func(g *Gate) {
		g.customVerifier = verify
	}
}

// WithStore makes the rate limiter use st instead of building one from
// configuration. The gate does not close it.
func WithStore(st store.Store) Option {
	return func(g *Gate) {
		g.store = st
	}
}

// WithMetrics records request metrics and registers unit metrics with the
// registry behind m.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

// WithRegisterer sets where unit metrics are registered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(g *Gate) {
		g.registerer = reg
	}
}
