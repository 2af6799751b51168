package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/faucetdb/tokengate/internal/auth"
	"github.com/faucetdb/tokengate/internal/server/middleware"
)

// SystemHandler serves the session endpoints. A session is the signed
// cookie form of an access token the caller already holds; no new token is
// issued.
type SystemHandler struct {
	cookies    *middleware.SignedCookies
	cookieName string
	logger     *slog.Logger
}

// NewSystemHandler creates a new SystemHandler. cookieName is the cookie the
// session is written to and must be one the token middleware reads.
func NewSystemHandler(cookies *middleware.SignedCookies, cookieName string, logger *slog.Logger) *SystemHandler {
	if cookieName == "" {
		cookieName = auth.DefaultCookie
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemHandler{cookies: cookies, cookieName: cookieName, logger: logger}
}

// sessionResponse describes the caller of a session endpoint.
type sessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	TokenID       string     `json:"token_id,omitempty"`
	UserID        string     `json:"user_id,omitempty"`
	AppID         string     `json:"app_id,omitempty"`
	Roles         []string   `json:"roles,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func describe(ac *auth.Context, withToken bool) sessionResponse {
	resp := sessionResponse{Authenticated: ac.Authenticated()}
	if !resp.Authenticated {
		return resp
	}
	tok := ac.Token
	resp.UserID = tok.UserID
	resp.AppID = tok.AppID
	if p := ac.PrincipalOrNil(); p != nil {
		resp.Roles = p.Roles
	}
	if exp, ok := tok.ExpiresAt(); ok {
		resp.ExpiresAt = &exp
	}
	if withToken {
		resp.TokenID = tok.ID
	}
	return resp
}

// Whoami describes the resolved caller.
// GET /api/v1/system/session
func (h *SystemHandler) Whoami(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, describe(auth.FromContext(r.Context()), false))
}

// Login writes the caller's token into the signed session cookie. The cookie
// expires with the token. Requires a resolved token.
// POST /api/v1/system/session
func (h *SystemHandler) Login(w http.ResponseWriter, r *http.Request) {
	ac := auth.FromContext(r.Context())
	if !ac.Authenticated() {
		writeError(w, http.StatusUnauthorized, "Authorization Required")
		return
	}

	var maxAge time.Duration
	if exp, ok := ac.Token.ExpiresAt(); ok {
		maxAge = time.Until(exp)
		if maxAge <= 0 {
			writeError(w, http.StatusUnauthorized, "Authorization Required")
			return
		}
	}

	if err := h.cookies.Set(w, h.cookieName, ac.Token.ID, maxAge); err != nil {
		h.logger.ErrorContext(r.Context(), "session cookie encode failed",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, describe(ac, true))
}

// Logout clears the session cookie. The token itself stays valid.
// DELETE /api/v1/system/session
func (h *SystemHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w, h.cookieName)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}
