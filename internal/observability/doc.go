// Package observability provides structured logging and tracing for the
// request gate.
//
// Logging is backed by zap behind the Logger interface so components can
// accept a logger through functional options and fall back to NopLogger:
//
//	logger, err := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request rejected",
//	    observability.String("reason", "rate_limited"),
//	)
//
// Tracing wraps an OpenTelemetry tracer provider with an optional OTLP gRPC
// exporter. Components create spans through the global provider, so a
// disabled Tracer costs nothing beyond the no-op spans.
package observability
