package middleware

import (
	"net/http"

	"github.com/MrEthical07/tokenauth"
)

// RequireAuthenticated rejects anonymous requests with 401. It must run after
// Authenticate.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokenauth.IdentityFromContext(r.Context()).IsAnonymous() {
			w.Header().Set("WWW-Authenticate", `Bearer realm="tokenauth"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAnyRole rejects anonymous requests with 401 and authenticated
// requests holding none of roles with 403.
func RequireAnyRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return RequireAuthenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := tokenauth.IdentityFromContext(r.Context())
			for _, role := range roles {
				if id.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		}))
	}
}
