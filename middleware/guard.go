package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/tokenauth"
)

// Authenticator verifies a bearer access token. *tokenauth.Engine implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (tokenauth.Identity, bool)
}

// Authenticate attaches an identity to every request and always calls next
// exactly once. A missing, malformed, expired or non-access token yields the
// anonymous identity; rejecting anonymous callers is left to
// RequireAuthenticated and RequireAnyRole.
func Authenticate(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := tokenauth.Anonymous()
			if auth != nil {
				if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
					if verified, ok := auth.Authenticate(r.Context(), token); ok {
						id = verified
					}
				}
			}

			ctx := tokenauth.WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
