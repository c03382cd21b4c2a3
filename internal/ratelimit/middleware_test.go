package ratelimit

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avagate/internal/pipeline"
)

// statusUnit answers with the given status.
func statusUnit(status int, hits *int) pipeline.Middleware {
	return pipeline.NamedFunc("app", func(_ *pipeline.Request, res pipeline.Response, _ pipeline.Next) {
		*hits++
		res.SetStatus(status)
		_, _ = res.Write([]byte("ok"))
	})
}

func clientRequest() *pipeline.Request {
	req := pipeline.NewRequest(http.MethodGet, "/")
	req.RemoteAddr = "192.0.2.1:4000"
	return req
}

func decodeBody(t *testing.T, out *pipeline.Outcome) map[string]any {
	t.Helper()

	rec, ok := out.Response.(*pipeline.Recorder)
	require.True(t, ok)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body(), &body))
	return body
}

func TestMiddleware_RejectsOverQuota(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := newTestLimiter(t, Config{Window: time.Second, Max: 2, Headers: true}, nil, clock)

	hits := 0
	p := pipeline.New().Use(l.Middleware(), statusUnit(http.StatusOK, &hits))

	for i := range 2 {
		out := p.Process(clientRequest())
		assert.True(t, out.Completed, "request %d", i)
		assert.Equal(t, "2", out.Response.Header().Get(HeaderRateLimitLimit))
		assert.Equal(t, "1", out.Response.Header().Get(HeaderRateLimitReset))
	}

	clock.Advance(250 * time.Millisecond)
	out := p.Process(clientRequest())
	assert.False(t, out.Completed)
	assert.Equal(t, "ratelimit", out.StoppedBy)
	assert.Equal(t, http.StatusTooManyRequests, out.Status())
	assert.Equal(t, "1", out.Response.Header().Get(HeaderRetryAfter))
	assert.Equal(t, "0", out.Response.Header().Get(HeaderRateLimitRemaining))
	assert.Equal(t, pipeline.ContentTypeJSON, out.Response.Header().Get(pipeline.HeaderContentType))
	assert.Equal(t, map[string]any{"error": true, "message": DefaultMessage}, decodeBody(t, out))
	assert.Equal(t, 2, hits)
}

func TestMiddleware_CustomStatusAndMessage(t *testing.T) {
	t.Parallel()

	l := newTestLimiter(t, Config{
		Window:     time.Minute,
		Max:        1,
		StatusCode: http.StatusServiceUnavailable,
		Message:    "slow down",
	}, nil, newFakeClock())

	hits := 0
	p := pipeline.New().Use(l.Middleware(), statusUnit(http.StatusOK, &hits))
	p.Process(clientRequest())
	out := p.Process(clientRequest())

	assert.Equal(t, http.StatusServiceUnavailable, out.Status())
	assert.Equal(t, "slow down", decodeBody(t, out)["message"])
	assert.False(t, out.Response.Header().Has(HeaderRateLimitLimit))
}

func TestMiddleware_SkipRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         Config
		status      int
		wantAllowed int
	}{
		{name: "count everything", status: http.StatusOK, wantAllowed: 2},
		{name: "skip successful", cfg: Config{SkipSuccessfulRequests: true}, status: http.StatusOK, wantAllowed: 5},
		{name: "skip successful counts failures", cfg: Config{SkipSuccessfulRequests: true}, status: http.StatusBadGateway, wantAllowed: 2},
		{name: "skip failed", cfg: Config{SkipFailedRequests: true}, status: http.StatusNotFound, wantAllowed: 5},
		{name: "skip failed counts successes", cfg: Config{SkipFailedRequests: true}, status: http.StatusCreated, wantAllowed: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := tt.cfg
			cfg.Window = time.Minute
			cfg.Max = 2
			l := newTestLimiter(t, cfg, nil, newFakeClock())

			hits := 0
			p := pipeline.New().Use(l.Middleware(), statusUnit(tt.status, &hits))
			for range 5 {
				p.Process(clientRequest())
			}
			assert.Equal(t, tt.wantAllowed, hits)
		})
	}
}

func TestMiddleware_StoreFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		failOpen   bool
		wantStatus int
		wantHits   int
	}{
		{name: "fail open", failOpen: true, wantStatus: http.StatusOK, wantHits: 1},
		{name: "fail closed", failOpen: false, wantStatus: http.StatusServiceUnavailable, wantHits: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, err := New(
				Config{Window: time.Minute, Max: 1, FailOpen: tt.failOpen},
				&failingStore{err: errors.New("redis down")},
				WithMetrics(testMetrics()),
			)
			require.NoError(t, err)

			hits := 0
			out := pipeline.New().Use(l.Middleware(), statusUnit(http.StatusOK, &hits)).Process(clientRequest())

			assert.Equal(t, tt.wantStatus, out.Status())
			assert.Equal(t, tt.wantHits, hits)
			if !tt.failOpen {
				assert.Equal(t, unavailableMessage, decodeBody(t, out)["message"])
			}
		})
	}
}

func TestMiddleware_KeyFunc(t *testing.T) {
	t.Parallel()

	l := newTestLimiter(t, Config{
		Window:  time.Minute,
		Max:     1,
		KeyFunc: HeaderKey("X-API-Key"),
	}, nil, newFakeClock())

	hits := 0
	p := pipeline.New().Use(l.Middleware(), statusUnit(http.StatusOK, &hits))

	for _, key := range []string{"a", "b", "a"} {
		req := clientRequest()
		req.Header.Set("X-API-Key", key)
		p.Process(req)
	}
	assert.Equal(t, 2, hits)
}

func TestCeilSeconds(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, ceilSeconds(-time.Second))
	assert.Equal(t, 0, ceilSeconds(0))
	assert.Equal(t, 1, ceilSeconds(time.Millisecond))
	assert.Equal(t, 2, ceilSeconds(1500*time.Millisecond))
	assert.Equal(t, 900, ceilSeconds(15*time.Minute))
}
