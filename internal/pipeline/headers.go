package pipeline

import (
	"net/http"
	"strings"
)

// Headers is a response header mapping that keeps names in first-insertion
// order so emitted headers are deterministic. Lookups are case-insensitive.
// A Headers value is owned by a single request and is not safe for
// concurrent mutation.
type Headers struct {
	order  []string
	values map[string][]string
}

// NewHeaders returns an empty header set.
func NewHeaders() *Headers {
	return &Headers{values: make(map[string][]string)}
}

// Set replaces any values of name with value. Replacing keeps the original
// position of name.
func (h *Headers) Set(name, value string) {
	key := http.CanonicalHeaderKey(name)
	if _, ok := h.values[key]; !ok {
		h.order = append(h.order, key)
	}
	h.values[key] = []string{value}
}

// Add appends value to name.
func (h *Headers) Add(name, value string) {
	key := http.CanonicalHeaderKey(name)
	if _, ok := h.values[key]; !ok {
		h.order = append(h.order, key)
	}
	h.values[key] = append(h.values[key], value)
}

// Get returns the first value of name, or "".
func (h *Headers) Get(name string) string {
	v := h.values[http.CanonicalHeaderKey(name)]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Values returns all values of name.
func (h *Headers) Values(name string) []string {
	return h.values[http.CanonicalHeaderKey(name)]
}

// Has reports whether name is present.
func (h *Headers) Has(name string) bool {
	_, ok := h.values[http.CanonicalHeaderKey(name)]
	return ok
}

// Del removes name.
func (h *Headers) Del(name string) {
	key := http.CanonicalHeaderKey(name)
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	for i, k := range h.order {
		if k == key {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Keys returns header names in insertion order.
func (h *Headers) Keys() []string {
	keys := make([]string, len(h.order))
	copy(keys, h.order)
	return keys
}

// Len returns the number of distinct header names.
func (h *Headers) Len() int {
	return len(h.order)
}

// Lines renders the headers as "Name: value" lines in insertion order.
func (h *Headers) Lines() []string {
	lines := make([]string, 0, len(h.order))
	for _, k := range h.order {
		for _, v := range h.values[k] {
			lines = append(lines, k+": "+v)
		}
	}
	return lines
}

// String renders the headers as a CRLF separated block.
func (h *Headers) String() string {
	return strings.Join(h.Lines(), "\r\n")
}

// CopyTo writes every header into dst, replacing existing values.
func (h *Headers) CopyTo(dst http.Header) {
	for _, k := range h.order {
		dst[k] = append([]string(nil), h.values[k]...)
	}
}
