// Package cors compiles cross-origin response headers from a policy
// configuration and memoizes the compiled sets by configuration fingerprint.
//
// A Cache is an explicit service object: construct one at process start,
// share it between middleware instances, and clear it when the configuration
// changes.
//
//	cache := cors.NewCache(cors.WithLogger(logger))
//	unit := cors.Middleware(cache, cors.Production([]string{"https://app.example.com"}))
//	p := pipeline.New().Use(unit, next)
//
// The Access-Control-Allow-Origin value is resolved per request:
//
//   - "*" when the allow-list contains the wildcard
//   - the request origin when it matches an entry exactly (case-sensitive) or
//     matches a pattern entry such as "https://*.example.com"
//   - the configured origin when exactly one was configured as a scalar and
//     the request carries no Origin header
//   - the literal "null" otherwise
package cors
