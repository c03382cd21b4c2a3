package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext extracts the caller's trace context from the request headers
// so spans started by the gate join the caller's trace. A nil propagator
// uses the global one at request time.
func TraceContext(prop propagation.TextMapPropagator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := prop
			if p == nil {
				p = otel.GetTextMapPropagator()
			}
			ctx := p.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
