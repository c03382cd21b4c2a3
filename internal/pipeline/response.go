package pipeline

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// Header and content type constants shared by middleware units.
const (
	HeaderContentType = "Content-Type"
	HeaderRequestID   = "X-Request-ID"
	ContentTypeJSON   = "application/json"
)

// Response is the capability set every middleware unit writes through.
type Response interface {
	// Header returns the mutable, insertion-ordered header set.
	Header() *Headers

	// Status returns the current status code.
	Status() int

	// SetStatus sets the status code.
	SetStatus(code int)

	// Write appends to the body.
	Write(p []byte) (int, error)

	// Written reports whether a status or body has been committed.
	Written() bool
}

// Recorder is the in-memory Response used by Pipeline.Process.
type Recorder struct {
	headers *Headers
	status  int
	body    bytes.Buffer
	written bool
}

// NewRecorder returns a Recorder with status 200 and no headers.
func NewRecorder() *Recorder {
	return &Recorder{
		headers: NewHeaders(),
		status:  http.StatusOK,
	}
}

// Header implements Response.
func (r *Recorder) Header() *Headers {
	return r.headers
}

// Status implements Response.
func (r *Recorder) Status() int {
	return r.status
}

// SetStatus implements Response.
func (r *Recorder) SetStatus(code int) {
	r.status = code
	r.written = true
}

// Write implements Response.
func (r *Recorder) Write(p []byte) (int, error) {
	r.written = true
	return r.body.Write(p)
}

// Written implements Response.
func (r *Recorder) Written() bool {
	return r.written
}

// Body returns the recorded body.
func (r *Recorder) Body() []byte {
	return r.body.Bytes()
}

// Flush emits the recorded response to w, headers first in insertion order.
func (r *Recorder) Flush(w http.ResponseWriter) error {
	r.headers.CopyTo(w.Header())
	w.WriteHeader(r.status)
	if r.body.Len() == 0 {
		return nil
	}
	_, err := w.Write(r.body.Bytes())
	return err
}

// WriteJSON sets the status and writes v as a JSON body.
func WriteJSON(res Response, status int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	res.Header().Set(HeaderContentType, ContentTypeJSON)
	res.SetStatus(status)
	_, err = res.Write(data)
	return err
}

var _ Response = (*Recorder)(nil)
