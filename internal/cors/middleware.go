package cors

import (
	"net/http"

	"github.com/vyrodovalexey/avagate/internal/observability"
	"github.com/vyrodovalexey/avagate/internal/pipeline"
)

// Middleware returns the pipeline unit for cfg. Headers are applied to every
// response; OPTIONS requests stop with 204 and an empty body.
func Middleware(cache *Cache, cfg Config) pipeline.Middleware {
	n := cfg.Normalize()
	fp := Fingerprint(n)

	return pipeline.NamedFunc("cors", func(req *pipeline.Request, res pipeline.Response, next pipeline.Next) {
		hs := cache.get(fp, n)

		requestOrigin := req.Header.Get(HeaderOrigin)
		allowed := hs.Apply(res.Header(), requestOrigin)
		if requestOrigin != "" && allowed == NullOrigin {
			cache.logger.WithContext(req.Context()).Debug("cors origin not allowed",
				observability.String("origin", requestOrigin),
				observability.String("path", req.Path),
			)
		}

		if req.Method == http.MethodOptions {
			res.SetStatus(http.StatusNoContent)
			return
		}

		next()
	})
}
