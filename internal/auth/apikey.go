// ABOUTME: HTTP middleware that checks the X-API-Key header against a shared secret.
// ABOUTME: An empty configured key disables the check.

package auth

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader carries the shared secret on inbound HTTP requests.
const APIKeyHeader = "X-API-Key"

// ValidAPIKey reports whether presented matches expected. Any key is valid when
// expected is empty.
func ValidAPIKey(expected, presented string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

// APIKeyMiddleware rejects requests without the expected key by calling deny.
func APIKeyMiddleware(expected string, deny http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ValidAPIKey(expected, r.Header.Get(APIKeyHeader)) {
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
