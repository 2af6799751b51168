package auth

import (
	"context"

	"github.com/faucetdb/tokengate/internal/model"
)

type contextKey string

const authContextKey contextKey = "auth_context"

// Context is the authentication state attached to a request. A request with
// no Context attached is anonymous.
type Context struct {
	Token     *model.AccessToken
	Principal *model.Principal
}

// Authenticated reports whether a token was resolved.
func (c *Context) Authenticated() bool {
	return c != nil && c.Token != nil
}

// PrincipalOrNil returns the principal, or nil for anonymous callers.
func (c *Context) PrincipalOrNil() *model.Principal {
	if c == nil {
		return nil
	}
	return c.Principal
}

// NewContext returns a copy of ctx carrying ac.
func NewContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, authContextKey, ac)
}

// FromContext extracts the auth context. Returns nil if none is present
// (i.e., anonymous request).
func FromContext(ctx context.Context) *Context {
	if ac, ok := ctx.Value(authContextKey).(*Context); ok {
		return ac
	}
	return nil
}
