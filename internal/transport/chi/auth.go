package chi

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
)

// exemptPaths are routes that bypass authentication.
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// BearerAuthMiddleware returns a middleware that validates Bearer tokens.
// If apiKeys is empty, authentication is disabled. CORS preflight requests are never challenged.
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	var validKeys [][sha256.Size]byte
	for _, k := range apiKeys {
		if k != "" {
			validKeys = append(validKeys, sha256.Sum256([]byte(k)))
		}
	}

	return func(next http.Handler) http.Handler {
		// Auth disabled
		if len(validKeys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			if !keyMatches(validKeys, auth[len(bearerPrefix):]) {
				writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// keyMatches compares SHA-256 digests in constant time.
func keyMatches(keys [][sha256.Size]byte, token string) bool {
	sum := sha256.Sum256([]byte(token))
	match := 0
	for _, k := range keys {
		match |= subtle.ConstantTimeCompare(k[:], sum[:])
	}
	return match == 1
}
