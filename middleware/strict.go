package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/MrEthical07/sessionwatch"
)

// RequireAccessToken is [Guard] plus a bearer check: the Authorization header
// must carry the access token stored in the session record.
func RequireAccessToken(m *sessionwatch.Monitor, opts Options) func(http.Handler) http.Handler {
	guard := Guard(m, opts)
	return func(next http.Handler) http.Handler {
		check := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			token, present := bearerToken(r.Header.Get("Authorization"))
			if !ok || !present || subtle.ConstantTimeCompare([]byte(token), []byte(p.AccessToken)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
		return guard(check)
	}
}
