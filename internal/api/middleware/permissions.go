package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/go-accounts/internal/authz"
)

// chiParams reads route parameters of a matched chi route.
type chiParams struct {
	r *http.Request
}

func (p chiParams) Param(name string) string {
	return chi.URLParam(p.r, name)
}

// Authorizer builds per-route permission middleware. Mount the result with
// r.With so route parameters are resolved before it runs.
type Authorizer struct {
	checker *authz.Checker
	logger  *slog.Logger
}

func NewAuthorizer(checker *authz.Checker, logger *slog.Logger) *Authorizer {
	return &Authorizer{checker: checker, logger: logger}
}

// Require rejects callers that do not satisfy req with 403. It must run
// after Auth.
func (a *Authorizer) Require(req authz.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r.Context())

			allowed, err := a.checker.Allowed(r.Context(), userID, req, chiParams{r: r})
			if err != nil {
				a.logger.Error("permission check failed",
					"user_id", userID,
					"path", r.URL.Path,
					"error", err,
				)
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			if !allowed {
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
