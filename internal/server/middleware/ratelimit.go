package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/faucetdb/tokengate/internal/auth"
)

// RateLimitByToken returns an HTTP middleware that limits requests per
// resolved access token, falling back to the client IP for anonymous
// callers. It must run after ResolveToken.
func RateLimitByToken(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if ac := auth.FromContext(r.Context()); ac.Authenticated() {
				return "token:" + ac.Token.ID, nil
			}
			return httprate.KeyByIP(r)
		}),
	)
}
