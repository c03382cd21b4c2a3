// Package middleware provides the net/http wrappers that sit outside the
// gate pipeline: request ID assignment, access logging and panic recovery.
//
//	handler := middleware.Chain(mux,
//	    middleware.Recovery(logger),
//	    middleware.RequestID(),
//	    middleware.Logging(logger),
//	)
package middleware
