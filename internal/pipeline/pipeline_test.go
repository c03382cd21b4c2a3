package pipeline

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avagate/internal/observability"
)

func recordUnit(name string, trace *[]string, callNext bool) Middleware {
	return NamedFunc(name, func(_ *Request, _ Response, next Next) {
		*trace = append(*trace, name)
		if callNext {
			next()
		}
	})
}

func TestPipeline_RunsUnitsInOrder(t *testing.T) {
	t.Parallel()

	var trace []string
	p := New().Use(
		recordUnit("a", &trace, true),
		recordUnit("b", &trace, true),
		recordUnit("c", &trace, true),
	)

	out := p.Process(NewRequest("GET", "/"))

	assert.True(t, out.Completed)
	assert.Equal(t, -1, out.StoppedAt)
	assert.Empty(t, out.StoppedBy)
	assert.Equal(t, []string{"a", "b", "c"}, trace)
	assert.Equal(t, http.StatusOK, out.Status())
}

func TestPipeline_ShortCircuit(t *testing.T) {
	t.Parallel()

	var trace []string
	p := New().Use(
		recordUnit("a", &trace, true),
		NamedFunc("blocker", func(_ *Request, res Response, _ Next) {
			trace = append(trace, "blocker")
			res.SetStatus(http.StatusForbidden)
		}),
		recordUnit("c", &trace, true),
	)

	out := p.Process(NewRequest("GET", "/"))

	assert.False(t, out.Completed)
	assert.Equal(t, 1, out.StoppedAt)
	assert.Equal(t, "blocker", out.StoppedBy)
	assert.Equal(t, []string{"a", "blocker"}, trace)
	assert.Equal(t, http.StatusForbidden, out.Status())
}

func TestPipeline_UnnamedUnit(t *testing.T) {
	t.Parallel()

	p := New().UseFunc(func(_ *Request, _ Response, _ Next) {})

	out := p.Process(NewRequest("GET", "/"))

	assert.Equal(t, "unit[0]", out.StoppedBy)
}

func TestPipeline_EmptyCompletes(t *testing.T) {
	t.Parallel()

	out := New().Process(NewRequest("GET", "/"))

	assert.True(t, out.Completed)
	assert.Equal(t, 0, New().Len())
}

func TestPipeline_NextIsIdempotent(t *testing.T) {
	t.Parallel()

	count := 0
	p := New().Use(
		MiddlewareFunc(func(_ *Request, _ Response, next Next) {
			next()
			next()
		}),
		MiddlewareFunc(func(_ *Request, _ Response, next Next) {
			count++
			next()
		}),
	)

	out := p.Process(NewRequest("GET", "/"))

	assert.True(t, out.Completed)
	assert.Equal(t, 1, count)
}

func TestPipeline_PostProcessing(t *testing.T) {
	t.Parallel()

	p := New().Use(
		MiddlewareFunc(func(_ *Request, res Response, next Next) {
			next()
			res.Header().Set("X-After", "yes")
		}),
		MiddlewareFunc(func(_ *Request, res Response, _ Next) {
			res.SetStatus(http.StatusCreated)
		}),
	)

	out := p.Process(NewRequest("POST", "/"))

	assert.Equal(t, http.StatusCreated, out.Status())
	assert.Equal(t, "yes", out.Response.Header().Get("x-after"))
}

func TestPipeline_RequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
	}{
		{name: "from header", header: "abc-123"},
		{name: "generated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen, seenCtx string
			p := New().UseFunc(func(req *Request, _ Response, next Next) {
				seen = req.Attributes().GetString(AttrRequestID)
				seenCtx = observability.RequestIDFromContext(req.Context())
				next()
			})

			req := NewRequest("GET", "/")
			if tt.header != "" {
				req.Header.Set(HeaderRequestID, tt.header)
			}
			p.Process(req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, seenCtx)
			if tt.header != "" {
				assert.Equal(t, tt.header, seen)
			}
		})
	}
}

func TestPipeline_ConcurrentProcess(t *testing.T) {
	t.Parallel()

	p := New().UseFunc(func(req *Request, res Response, next Next) {
		res.Header().Set("X-Path", req.Path)
		next()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := p.Process(NewRequest("GET", "/x"))
			assert.Equal(t, "/x", out.Response.Header().Get("X-Path"))
		}()
	}
	wg.Wait()
}

func TestNewRequest(t *testing.T) {
	t.Parallel()

	req := NewRequest("post", "/items?id=7&tag=a&tag=b")

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/items", req.Path)
	assert.Equal(t, "7", req.Query.Get("id"))
	assert.Equal(t, []string{"a", "b"}, req.Query["tag"])
	assert.NotNil(t, req.Context())

	empty := NewRequest("GET", "")
	assert.Equal(t, "/", empty.Path)
}

func TestAttributes(t *testing.T) {
	t.Parallel()

	attrs := NewAttributes()
	attrs.Set("k", "v")
	attrs.Set("n", 3)

	assert.Equal(t, "v", attrs.GetString("k"))
	assert.Empty(t, attrs.GetString("n"))
	v, ok := attrs.Get("n")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, attrs.Len())

	attrs.Delete("k")
	_, ok = attrs.Get("k")
	assert.False(t, ok)
}

func TestHeaders_InsertionOrder(t *testing.T) {
	t.Parallel()

	h := NewHeaders()
	h.Set("X-B", "1")
	h.Set("x-a", "2")
	h.Add("Vary", "Origin")
	h.Set("X-B", "3")

	assert.Equal(t, []string{"X-B", "X-A", "Vary"}, h.Keys())
	assert.Equal(t, []string{"X-B: 3", "X-A: 2", "Vary: Origin"}, h.Lines())
	assert.Equal(t, "X-B: 3\r\nX-A: 2\r\nVary: Origin", h.String())
	assert.True(t, h.Has("x-b"))

	h.Del("x-a")
	assert.Equal(t, []string{"X-B", "Vary"}, h.Keys())
	assert.Equal(t, 2, h.Len())
	assert.Empty(t, h.Get("X-A"))

	h.Add("Vary", "Accept")
	assert.Equal(t, []string{"Origin", "Accept"}, h.Values("vary"))
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusTeapot, map[string]string{"a": "b"}))

	assert.Equal(t, http.StatusTeapot, rec.Status())
	assert.Equal(t, ContentTypeJSON, rec.Header().Get(HeaderContentType))
	assert.JSONEq(t, `{"a":"b"}`, string(rec.Body()))
	assert.True(t, rec.Written())
}

func TestHandler(t *testing.T) {
	t.Parallel()

	final := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, "app")
	})

	tests := []struct {
		name       string
		block      bool
		wantStatus int
		wantBody   string
	}{
		{name: "falls through to final handler", wantStatus: http.StatusAccepted, wantBody: "app"},
		{name: "short-circuit flushes recorder", block: true, wantStatus: http.StatusTooManyRequests, wantBody: "blocked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := New().UseFunc(func(_ *Request, res Response, next Next) {
				res.Header().Set("X-Unit", "ran")
				if tt.block {
					res.SetStatus(http.StatusTooManyRequests)
					_, _ = res.Write([]byte("blocked"))
					return
				}
				next()
			})

			w := httptest.NewRecorder()
			Handler(p, final).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
			assert.Equal(t, "ran", w.Header().Get("X-Unit"))
		})
	}
}

func TestHTTPHandlerUnit(t *testing.T) {
	t.Parallel()

	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Query", r.URL.Query().Get("q"))
		_, _ = io.WriteString(w, "hello")
	})

	out := New().Use(HTTPHandlerUnit(app)).Process(NewRequest("GET", "/?q=z"))

	rec := out.Response.(*Recorder)
	assert.Equal(t, http.StatusOK, rec.Status())
	assert.Equal(t, "z", rec.Header().Get("X-Query"))
	assert.Equal(t, "hello", string(rec.Body()))
	assert.Equal(t, "handler", out.StoppedBy)
}

func TestRequest_HTTPRequestCarriesBody(t *testing.T) {
	t.Parallel()

	var gotBody, gotHost, gotPath, gotLength string
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotHost = r.Host
		gotPath = r.URL.EscapedPath()
		gotLength = r.Header.Get("Content-Length")
		w.WriteHeader(http.StatusCreated)
	})

	hr := httptest.NewRequest(http.MethodPost, "http://api.example.com/orders/a%2Fb", strings.NewReader(`{"id":1}`))
	hr.Header.Set("Content-Length", "8")
	out := New().Use(HTTPHandlerUnit(app)).Process(FromHTTP(hr))

	assert.Equal(t, http.StatusCreated, out.Response.Status())
	assert.Equal(t, `{"id":1}`, gotBody)
	assert.Equal(t, "api.example.com", gotHost)
	assert.Equal(t, "/orders/a%2Fb", gotPath)
	assert.Equal(t, "8", gotLength)
}

func TestRequest_HTTPRequestWithoutOrigin(t *testing.T) {
	t.Parallel()

	req := NewRequest("delete", "/items/7?force=true")
	req.Header.Set("X-Tenant", "acme")

	hr := req.HTTPRequest()
	assert.Equal(t, http.MethodDelete, hr.Method)
	assert.Equal(t, "/items/7", hr.URL.Path)
	assert.Equal(t, "true", hr.URL.Query().Get("force"))
	assert.Equal(t, "acme", hr.Header.Get("X-Tenant"))
	assert.Equal(t, http.NoBody, hr.Body)
}

func TestHTTPHandlerUnit_HeadersWithoutWrite(t *testing.T) {
	t.Parallel()

	app := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", "/elsewhere")
	})

	out := New().Use(HTTPHandlerUnit(app)).Process(NewRequest("GET", "/"))

	assert.Equal(t, http.StatusOK, out.Status())
	assert.Equal(t, "/elsewhere", out.Response.Header().Get("Location"))
	assert.True(t, out.Response.Written())
}

func TestStreamWriter(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	res := NewStreamWriter(w)

	res.Header().Set("X-First", "1")
	res.Header().Set("Content-Type", "text/plain")
	res.SetStatus(http.StatusAccepted)
	assert.True(t, res.Written())
	assert.False(t, res.Committed())
	assert.False(t, w.Flushed)

	_, err := res.Write([]byte("chunk"))
	require.NoError(t, err)
	assert.True(t, res.Committed())
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-First"))

	res.Header().Set("X-Late", "ignored")
	res.SetStatus(http.StatusTeapot)
	res.Flush()
	res.Commit()

	assert.True(t, w.Flushed)
	assert.Equal(t, http.StatusAccepted, res.Status())
	assert.Empty(t, w.Header().Get("X-Late"))
	assert.Equal(t, "chunk", w.Body.String())
	assert.Same(t, w, res.Unwrap())
}

func TestStreamWriter_CommitStatusOnly(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	res := NewStreamWriter(w)
	res.Header().Set("Access-Control-Allow-Origin", "*")
	res.SetStatus(http.StatusNoContent)
	res.Commit()

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Body.String())
}

func TestHTTPHandlerUnit_FlushesThroughStreamWriter(t *testing.T) {
	t.Parallel()

	app := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: first\n\n")
		require.Implements(t, (*http.Flusher)(nil), w)
		w.(http.Flusher).Flush()
	})

	w := httptest.NewRecorder()
	New().Use(HTTPHandlerUnit(app)).ProcessWith(NewRequest("GET", "/events"), NewStreamWriter(w))

	assert.True(t, w.Flushed)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "data: first\n\n", w.Body.String())
}
