// Package health provides liveness and readiness endpoints for the gate
// process.
//
// Readiness is the aggregate of registered checks. A failing critical check
// makes the process unready; a failing non-critical check only degrades it:
//
//	checker := health.NewChecker(version, logger)
//	checker.RegisterCheck("ratelimit_store", health.ErrorCheck(g.Ready, true))
//
//	mux.HandleFunc("/healthz", checker.LivenessHandler())
//	mux.HandleFunc("/readyz", checker.ReadinessHandler())
package health
