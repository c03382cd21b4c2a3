package pipeline

import "net/http"

// StreamWriter is a Response that writes through to an http.ResponseWriter.
// Headers and status are committed on the first Write or Flush, or by
// Commit. Header and status changes after that have no effect.
type StreamWriter struct {
	w         http.ResponseWriter
	headers   *Headers
	status    int
	written   bool
	committed bool
}

// NewStreamWriter returns a StreamWriter over w with status 200.
func NewStreamWriter(w http.ResponseWriter) *StreamWriter {
	return &StreamWriter{
		w:       w,
		headers: NewHeaders(),
		status:  http.StatusOK,
	}
}

// Header implements Response.
func (s *StreamWriter) Header() *Headers {
	return s.headers
}

// Status implements Response.
func (s *StreamWriter) Status() int {
	return s.status
}

// SetStatus implements Response.
func (s *StreamWriter) SetStatus(code int) {
	s.written = true
	if !s.committed {
		s.status = code
	}
}

// Write implements Response. The first call commits headers and status.
func (s *StreamWriter) Write(p []byte) (int, error) {
	s.written = true
	s.Commit()
	return s.w.Write(p)
}

// Written implements Response.
func (s *StreamWriter) Written() bool {
	return s.written
}

// Committed reports whether headers and status have been sent.
func (s *StreamWriter) Committed() bool {
	return s.committed
}

// Commit sends the headers in insertion order and the status, once.
func (s *StreamWriter) Commit() {
	if s.committed {
		return
	}
	s.committed = true
	s.headers.CopyTo(s.w.Header())
	s.w.WriteHeader(s.status)
}

// Flush commits and flushes buffered data to the client when the underlying
// writer supports it.
func (s *StreamWriter) Flush() {
	s.Commit()
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying writer for http.ResponseController.
func (s *StreamWriter) Unwrap() http.ResponseWriter {
	return s.w
}

var (
	_ Response     = (*StreamWriter)(nil)
	_ http.Flusher = (*StreamWriter)(nil)
)
