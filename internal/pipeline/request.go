package pipeline

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Well-known attribute keys.
const (
	// AttrRequestID holds the request identifier assigned by the pipeline.
	AttrRequestID = "request_id"
)

// Request is the transport-independent view of an inbound call. It is created
// per call and owned by one pipeline execution.
type Request struct {
	// Method is the HTTP verb, upper case.
	Method string

	// Path is the request path without the query string.
	Path string

	// Header holds request headers. Lookups through Header.Get are
	// case-insensitive.
	Header http.Header

	// Query holds the parsed query string.
	Query url.Values

	// RemoteAddr is the network address of the client, "host:port" or "host".
	RemoteAddr string

	ctx    context.Context
	attrs  *Attributes
	origin *http.Request
}

// NewRequest creates a request for method and target. Target may carry a
// query string.
func NewRequest(method, target string) *Request {
	path, rawQuery, _ := strings.Cut(target, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		query = url.Values{}
	}
	if path == "" {
		path = "/"
	}

	return &Request{
		Method: strings.ToUpper(method),
		Path:   path,
		Header: make(http.Header),
		Query:  query,
		ctx:    context.Background(),
		attrs:  NewAttributes(),
	}
}

// FromHTTP converts a net/http request. The header map is shared, not copied.
func FromHTTP(r *http.Request) *Request {
	return &Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		Header:     r.Header,
		Query:      r.URL.Query(),
		RemoteAddr: r.RemoteAddr,
		ctx:        r.Context(),
		attrs:      NewAttributes(),
		origin:     r,
	}
}

// HTTPRequest rebuilds a net/http request from r. The body and host are taken
// from the request r was converted from, if any. Everything else comes from r.
func (r *Request) HTTPRequest() *http.Request {
	u := &url.URL{Path: r.Path, RawQuery: r.Query.Encode()}
	hr := &http.Request{
		Method:     r.Method,
		URL:        u,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     r.Header,
		Body:       http.NoBody,
		RemoteAddr: r.RemoteAddr,
	}
	if hr.Header == nil {
		hr.Header = make(http.Header)
	}

	if o := r.origin; o != nil {
		if o.URL != nil && o.URL.Path == r.Path {
			u.RawPath = o.URL.RawPath
		}
		hr.Proto, hr.ProtoMajor, hr.ProtoMinor = o.Proto, o.ProtoMajor, o.ProtoMinor
		hr.Host = o.Host
		hr.TLS = o.TLS
		hr.Trailer = o.Trailer
		hr.TransferEncoding = o.TransferEncoding
		hr.ContentLength = o.ContentLength
		hr.GetBody = o.GetBody
		if o.Body != nil {
			hr.Body = o.Body
		}
	}
	return hr.WithContext(r.Context())
}

// Context returns the request context. It is never nil.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// SetContext replaces the request context.
func (r *Request) SetContext(ctx context.Context) {
	if ctx != nil {
		r.ctx = ctx
	}
}

// Attributes returns the per-request attribute bag.
func (r *Request) Attributes() *Attributes {
	if r.attrs == nil {
		r.attrs = NewAttributes()
	}
	return r.attrs
}

// Attributes is an opaque per-request bag used to pass values, such as the
// authenticated identity, to downstream units. It is safe for concurrent use.
type Attributes struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewAttributes returns an empty bag.
func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]any)}
}

// Set stores value under key.
func (a *Attributes) Set(key string, value any) {
	a.mu.Lock()
	a.values[key] = value
	a.mu.Unlock()
}

// Get returns the value under key.
func (a *Attributes) Get(key string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.values[key]
	return v, ok
}

// GetString returns the value under key when it is a string.
func (a *Attributes) GetString(key string) string {
	v, _ := a.Get(key)
	s, _ := v.(string)
	return s
}

// Delete removes key.
func (a *Attributes) Delete(key string) {
	a.mu.Lock()
	delete(a.values, key)
	a.mu.Unlock()
}

// Len returns the number of stored keys.
func (a *Attributes) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.values)
}
