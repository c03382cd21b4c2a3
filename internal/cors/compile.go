package cors

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/vyrodovalexey/avagate/internal/pipeline"
)

// Response header names.
const (
	HeaderAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderMaxAge           = "Access-Control-Max-Age"
	HeaderExposeHeaders    = "Access-Control-Expose-Headers"
	HeaderOrigin           = "Origin"
	HeaderVary             = "Vary"
)

// NullOrigin is emitted when no allowed origin can be determined.
const NullOrigin = "null"

// errInvalidOrigin marks a request origin outside the allow-list. It never
// leaves the package; callers see NullOrigin.
var errInvalidOrigin = errors.New("origin not allowed")

// Header is one compiled response header.
type Header struct {
	Name  string
	Value string
}

// HeaderSet is the compiled form of a Config. It is immutable and safe for
// concurrent use.
type HeaderSet struct {
	fingerprint string
	allowAll    bool
	exact       map[string]struct{}
	patterns    []*regexp.Regexp
	fallback    string
	headers     []Header
	block       string
}

// Compile builds the header set for cfg. Compilation is a pure function of
// the normalized configuration.
func Compile(cfg Config) *HeaderSet {
	n := cfg.Normalize()
	return compileNormalized(n, Fingerprint(n))
}

func compileNormalized(n Config, fingerprint string) *HeaderSet {
	hs := &HeaderSet{
		fingerprint: fingerprint,
		allowAll:    n.AllowsAll(),
		exact:       make(map[string]struct{}, len(n.Origins)),
	}

	for _, origin := range n.Origins {
		if origin == Wildcard {
			continue
		}
		if strings.Contains(origin, Wildcard) {
			hs.patterns = append(hs.patterns, originPattern(origin))
			continue
		}
		hs.exact[origin] = struct{}{}
	}

	switch {
	case hs.allowAll:
		hs.fallback = Wildcard
	case n.OriginScalar && len(n.Origins) == 1:
		hs.fallback = n.Origins[0]
	default:
		hs.fallback = NullOrigin
	}

	hs.headers = append(hs.headers,
		Header{HeaderAllowOrigin, hs.fallback},
		Header{HeaderAllowMethods, strings.Join(n.Methods, ", ")},
		Header{HeaderAllowHeaders, strings.Join(n.Headers, ", ")},
	)
	if n.Credentials {
		hs.headers = append(hs.headers, Header{HeaderAllowCredentials, "true"})
	}
	hs.headers = append(hs.headers, Header{HeaderMaxAge, strconv.Itoa(n.MaxAge)})
	if len(n.Expose) > 0 {
		hs.headers = append(hs.headers, Header{HeaderExposeHeaders, strings.Join(n.Expose, ", ")})
	}

	var b strings.Builder
	for _, h := range hs.headers {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	hs.block = b.String()

	return hs
}

// originPattern turns "https://*.example.com" into an anchored expression.
// Everything except "*" is matched literally.
func originPattern(origin string) *regexp.Regexp {
	expr := strings.ReplaceAll(regexp.QuoteMeta(origin), `\*`, `.*`)
	return regexp.MustCompile("^" + expr + "$")
}

// Fingerprint returns the fingerprint the set was compiled for.
func (hs *HeaderSet) Fingerprint() string {
	return hs.fingerprint
}

// Headers returns the compiled headers in emission order. The origin entry
// carries the value used when the request has no Origin header.
func (hs *HeaderSet) Headers() []Header {
	out := make([]Header, len(hs.headers))
	copy(out, hs.headers)
	return out
}

// Block returns the compiled headers as "Name: value\r\n" lines.
func (hs *HeaderSet) Block() string {
	return hs.block
}

// Get returns the compiled value for name.
func (hs *HeaderSet) Get(name string) (string, bool) {
	for _, h := range hs.headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// ForOrigin resolves Access-Control-Allow-Origin for a request origin. vary
// reports whether the value depends on the request origin.
func (hs *HeaderSet) ForOrigin(requestOrigin string) (value string, vary bool) {
	if hs.allowAll {
		return Wildcard, false
	}
	if requestOrigin == "" {
		return hs.fallback, false
	}
	allowed, err := hs.match(requestOrigin)
	if err != nil {
		return NullOrigin, true
	}
	return allowed, true
}

func (hs *HeaderSet) match(origin string) (string, error) {
	if _, ok := hs.exact[origin]; ok {
		return origin, nil
	}
	for _, re := range hs.patterns {
		if re.MatchString(origin) {
			return origin, nil
		}
	}
	return "", errInvalidOrigin
}

// Apply writes the set to dst with the origin resolved for requestOrigin.
// It returns the resolved origin.
func (hs *HeaderSet) Apply(dst *pipeline.Headers, requestOrigin string) string {
	origin, vary := hs.ForOrigin(requestOrigin)
	for _, h := range hs.headers {
		if h.Name == HeaderAllowOrigin {
			dst.Set(h.Name, origin)
			continue
		}
		dst.Set(h.Name, h.Value)
	}
	if vary {
		addVary(dst, HeaderOrigin)
	}
	return origin
}

func addVary(dst *pipeline.Headers, field string) {
	for _, v := range dst.Values(HeaderVary) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), field) {
				return
			}
		}
	}
	dst.Add(HeaderVary, field)
}

// memorySize estimates the bytes held by the compiled headers and the block.
func (hs *HeaderSet) memorySize() (headers, block int) {
	for _, h := range hs.headers {
		headers += len(h.Name) + len(h.Value)
	}
	return headers, len(hs.block)
}
