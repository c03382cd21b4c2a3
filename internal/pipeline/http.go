package pipeline

import (
	"net/http"

	"github.com/vyrodovalexey/avagate/internal/observability"
)

// Handler adapts p to net/http. Outcomes that complete without anything
// written fall through to final, when set; otherwise the recorded response is
// flushed as is.
func Handler(p *Pipeline, final http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := FromHTTP(r)
		out := p.Process(req)
		rec, _ := out.Response.(*Recorder)

		if out.Completed && final != nil && rec != nil && !rec.Written() {
			rec.Header().CopyTo(w.Header())
			final.ServeHTTP(w, r.WithContext(req.Context()))
			return
		}

		if rec == nil {
			return
		}
		if err := rec.Flush(w); err != nil {
			p.logger.WithContext(req.Context()).Debug("failed to write response",
				observability.Error(err),
			)
		}
	})
}

// HTTPHandlerUnit wraps an application handler as the terminal unit of a
// pipeline. The handler writes into the pipeline's Response and the chain
// stops there. A handler that returns without writing answers 200 with the
// headers it set.
func HTTPHandlerUnit(h http.Handler) Middleware {
	return NamedFunc("handler", func(req *Request, res Response, _ Next) {
		rw := &responseWriter{res: res, header: make(http.Header)}
		h.ServeHTTP(rw, req.HTTPRequest())
		if !rw.wroteHeader {
			rw.WriteHeader(http.StatusOK)
		}
	})
}

// responseWriter adapts Response to http.ResponseWriter.
type responseWriter struct {
	res         Response
	header      http.Header
	wroteHeader bool
}

func (w *responseWriter) Header() http.Header {
	return w.header
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	for k, vs := range w.header {
		w.res.Header().Del(k)
		for _, v := range vs {
			w.res.Header().Add(k, v)
		}
	}
	w.res.SetStatus(code)
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.res.Write(p)
}

// Flush passes through when the Response streams; a recording Response
// ignores it.
func (w *responseWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.res.(http.Flusher); ok {
		f.Flush()
	}
}

var _ http.Flusher = (*responseWriter)(nil)
