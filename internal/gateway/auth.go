package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthMiddleware guards the API with a single bearer token. An empty
// token disables auth entirely (local use).
type AuthMiddleware struct {
	token string
}

func NewAuthMiddleware(token string) *AuthMiddleware {
	return &AuthMiddleware{token: token}
}

// Wrap wraps an http.Handler with bearer token checking.
func (am *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	if am.token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health checks stay open for probes.
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		candidate := extractToken(r)
		if candidate == "" {
			http.Error(w, `{"error":"missing auth token"}`, http.StatusUnauthorized)
			return
		}
		// Constant-time comparison to prevent timing attacks.
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(am.token)) != 1 {
			http.Error(w, `{"error":"invalid auth token"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractToken checks, in order: Authorization: Bearer <token>,
// X-API-Key header, api_key query param.
func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}
