package middleware

import (
	"net/http"
	"strings"

	"aichat/internal/auth"
	"aichat/internal/domain"
	"aichat/internal/domain/repositories"
	"aichat/internal/httputil"
)

// Auth authenticates requests from the session cookie (or a Bearer token)
// and loads the user onto the request context. A token whose user no longer
// exists is rejected, not passed through. Paths in publicPaths bypass the
// check entirely.
func Auth(issuer *auth.TokenIssuer, users repositories.UserRepository, publicPaths ...string) func(http.Handler) http.Handler {
	public := make(map[string]struct{}, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := public[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token := tokenFromRequest(r)
			if token == "" {
				httputil.RespondError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "authentication required")
				return
			}

			claims, err := issuer.Verify(token)
			if err != nil {
				httputil.RespondError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "session is invalid or expired, please sign in again")
				return
			}

			user, err := users.GetByID(r.Context(), claims.Subject)
			if err != nil {
				httputil.RespondError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "session is invalid or expired, please sign in again")
				return
			}

			next.ServeHTTP(w, httputil.WithUser(r, user))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(auth.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
