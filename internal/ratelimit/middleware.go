package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/vyrodovalexey/avagate/internal/observability"
	"github.com/vyrodovalexey/avagate/internal/pipeline"
)

// Rate limit response headers.
const (
	HeaderRetryAfter         = "Retry-After"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// unavailableMessage is returned with 503 when the store fails closed.
const unavailableMessage = "Rate limiter unavailable"

// errorBody is the JSON body of rejected requests.
type errorBody struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// Middleware returns the pipeline unit. Over-quota requests stop with the
// configured status and message.
func (l *Limiter) Middleware() pipeline.Middleware {
	return pipeline.NamedFunc("ratelimit", func(req *pipeline.Request, res pipeline.Response, next pipeline.Next) {
		ctx := req.Context()
		key := l.cfg.KeyFunc(req)

		result, err := l.Allow(ctx, key)
		if err != nil {
			l.logger.WithContext(ctx).Error("rate limit check failed",
				observability.String("key", key),
				observability.Bool("fail_open", l.cfg.FailOpen),
				observability.Error(err),
			)
			if l.cfg.FailOpen {
				next()
				return
			}
			l.write(res, http.StatusServiceUnavailable, unavailableMessage)
			return
		}

		if l.cfg.Headers {
			setHeaders(res, result)
		}

		if !result.Allowed {
			res.Header().Set(HeaderRetryAfter, strconv.Itoa(ceilSeconds(result.RetryAfter)))
			l.warn.Do(func() {
				l.logger.WithContext(ctx).Warn("rate limit exceeded",
					observability.String("key", key),
					observability.String("path", req.Path),
					observability.Error(ErrRateLimitExceeded),
				)
			})
			l.write(res, l.cfg.StatusCode, l.cfg.Message)
			return
		}

		next()

		if l.shouldForget(res.Status()) {
			if err := l.Forget(ctx, key, result.RecordedAt); err != nil {
				l.logger.WithContext(ctx).Debug("failed to uncount request",
					observability.String("key", key),
					observability.Error(err),
				)
			}
		}
	})
}

func (l *Limiter) shouldForget(status int) bool {
	if status >= http.StatusBadRequest {
		return l.cfg.SkipFailedRequests
	}
	return l.cfg.SkipSuccessfulRequests
}

func (l *Limiter) write(res pipeline.Response, status int, message string) {
	if err := pipeline.WriteJSON(res, status, errorBody{Error: true, Message: message}); err != nil {
		l.logger.Error("failed to write rate limit response", observability.Error(err))
	}
}

func setHeaders(res pipeline.Response, result *Result) {
	h := res.Header()
	h.Set(HeaderRateLimitLimit, strconv.Itoa(result.Limit))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
	h.Set(HeaderRateLimitReset, strconv.Itoa(ceilSeconds(result.ResetAfter)))
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
