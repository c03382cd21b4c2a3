package auth

import (
	"net/http"

	"github.com/vyrodovalexey/avagate/internal/observability"
	"github.com/vyrodovalexey/avagate/internal/pipeline"
)

// unitName is reported by the pipeline when authentication stops a request.
const unitName = "auth"

// Middleware returns the pipeline unit. Authenticated requests get the
// identity attached and continue; rejected requests stop with 401.
func (d *Dispatcher) Middleware() pipeline.Middleware {
	return pipeline.NamedFunc(unitName, func(req *pipeline.Request, res pipeline.Response, next pipeline.Next) {
		if d.ShouldSkip(req.Path) {
			next()
			return
		}

		result := d.Dispatch(req.Context(), req)
		if !result.Authenticated() {
			d.handleAuthError(req, res)
			return
		}

		attrs := req.Attributes()
		attrs.Set(AttrIdentity, result.Identity)
		attrs.Set(AttrAuthMethod, result.Method)
		req.SetContext(ContextWithIdentity(req.Context(), result.Identity))

		next()
	})
}

// handleAuthError writes the generic 401 response.
func (d *Dispatcher) handleAuthError(req *pipeline.Request, res pipeline.Response) {
	d.logger.WithContext(req.Context()).Warn("authentication failed",
		observability.String("path", req.Path),
		observability.String("method", req.Method),
	)

	if err := pipeline.WriteJSON(res, http.StatusUnauthorized, map[string]string{"error": failureMessage}); err != nil {
		d.logger.Error("failed to write auth error response", observability.Error(err))
	}
}
