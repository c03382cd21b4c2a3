package ratelimit

import (
	"net"
	"strings"

	"github.com/vyrodovalexey/avagate/internal/pipeline"
)

// UnknownClient is the key used when no client address is available.
const UnknownClient = "unknown"

// KeyFunc is a function that extracts a rate limit key from a request.
type KeyFunc func(req *pipeline.Request) string

// ClientIPKey uses the network address of the peer. Forwarding headers are
// ignored since any client can set them.
func ClientIPKey(req *pipeline.Request) string {
	addr := strings.TrimSpace(req.RemoteAddr)
	if addr == "" {
		return UnknownClient
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
}

// ForwardedForKey trusts X-Forwarded-For (first hop) and X-Real-IP. Use it
// only behind a proxy that overwrites those headers.
func ForwardedForKey(req *pipeline.Request) string {
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(req.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return ClientIPKey(req)
}

// HeaderKey returns a KeyFunc that uses a specific header value as the rate
// limit key, falling back to the client IP.
func HeaderKey(header string) KeyFunc {
	return func(req *pipeline.Request) string {
		if value := req.Header.Get(header); value != "" {
			return value
		}
		return ClientIPKey(req)
	}
}

// CompositeKey joins the non-empty keys of funcs with ":".
func CompositeKey(funcs ...KeyFunc) KeyFunc {
	return func(req *pipeline.Request) string {
		parts := make([]string, 0, len(funcs))
		for _, fn := range funcs {
			if key := fn(req); key != "" {
				parts = append(parts, key)
			}
		}
		if len(parts) == 0 {
			return ClientIPKey(req)
		}
		return strings.Join(parts, ":")
	}
}

// PerEndpointKey prefixes the base key with method and path.
func PerEndpointKey(base KeyFunc) KeyFunc {
	return func(req *pipeline.Request) string {
		return req.Method + ":" + req.Path + ":" + base(req)
	}
}

// KeyFuncByName resolves a configured key strategy: "ip" (default),
// "forwarded" or "header" (which uses header).
func KeyFuncByName(name, header string) (KeyFunc, bool) {
	switch strings.ToLower(name) {
	case "", "ip":
		return ClientIPKey, true
	case "forwarded":
		return ForwardedForKey, true
	case "header":
		if header == "" {
			return nil, false
		}
		return HeaderKey(header), true
	default:
		return nil, false
	}
}
