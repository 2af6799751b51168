package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/faucetdb/tokengate/internal/auth"
)

// ResolveToken returns an HTTP middleware that resolves the access token on
// each request and attaches the resulting auth.Context. Requests without a
// valid token continue anonymously; only downstream authorization can reject
// them. A request that already carries an auth context is passed through
// unchanged.
//
// Cookies named in cookieNames are read through the signer and ignored when
// their signature does not verify. A store failure ends the request with a
// 500.
func ResolveToken(resolver *auth.Resolver, cookies *SignedCookies, cookieNames []string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if ac := auth.FromContext(ctx); ac != nil {
				noteAuth(ctx, ac)
				next.ServeHTTP(w, r)
				return
			}

			s := &auth.Surface{Query: r.URL.Query(), Header: r.Header}
			if cookies != nil {
				s.Cookies = cookies.Verified(r, cookieNames)
			}

			ac, err := resolver.Resolve(ctx, s)
			if err != nil {
				logger.ErrorContext(ctx, "token resolution failed",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			if ac == nil {
				next.ServeHTTP(w, r)
				return
			}

			noteAuth(ctx, ac)
			next.ServeHTTP(w, r.WithContext(auth.NewContext(ctx, ac)))
		})
	}
}

// RequireToken returns an HTTP middleware that rejects requests without a
// resolved token. It must be used after ResolveToken in the middleware chain.
func RequireToken() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.FromContext(r.Context()).Authenticated() {
				writeJSONError(w, http.StatusUnauthorized, "Authorization Required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSONError writes the standard error envelope. It is duplicated here
// to avoid an import cycle with the handler package.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": message,
		},
	})
}
