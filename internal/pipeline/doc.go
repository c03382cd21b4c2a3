// Package pipeline implements the chain of responsibility that every inbound
// request passes through.
//
// A Pipeline holds an ordered list of Middleware units. Each unit receives the
// Request, the shared Response and a Next continuation. Calling next hands
// control to the following unit; returning without calling it short-circuits
// the chain, and the response as written so far is final. Units appended
// before serving are run in the order they were added.
//
// Response headers are kept in first-insertion order so that emitted header
// lines are deterministic, which matters for CORS and rate-limit headers that
// clients and tests inspect line by line.
package pipeline
