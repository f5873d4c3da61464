package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"aichat/internal/domain"
	"aichat/internal/httputil"
)

// Recovery turns handler panics into 500 responses instead of dropped
// connections. If the response has already started streaming, nothing more
// can be written and the connection is simply closed.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic in handler",
						"method", r.Method,
						"path", r.URL.Path,
						"panic", rec,
						"stack", string(debug.Stack()))
					httputil.RespondError(w, http.StatusInternalServerError, domain.CodeInternal, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
