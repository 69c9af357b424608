package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/mandalnilabja/chatrelay/internal/types"
)

// AdminAuth protects operator routes with a static bearer token.
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				types.WriteError(w, http.StatusUnauthorized, types.NewRelayError("Unauthorized"))
				return
			}

			presented := strings.TrimPrefix(auth, "Bearer ")
			if token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				types.WriteError(w, http.StatusUnauthorized, types.NewRelayError("Unauthorized"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
