package remote

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/faucetdb/tokengate/internal/model"
	"github.com/faucetdb/tokengate/internal/service"
)

// AccessTokenModelName is the name of the built-in token model.
const AccessTokenModelName = "AccessToken"

// AccessTokenACLs deny everyone except holders of the admin role.
func AccessTokenACLs() []model.ACLRule {
	return []model.ACLRule{
		{Model: AccessTokenModelName, AccessType: model.AccessAll, Permission: model.PermissionDeny, PrincipalType: model.PrincipalRole, PrincipalID: model.RoleEveryone},
		{Model: AccessTokenModelName, AccessType: model.AccessAll, Permission: model.PermissionAllow, PrincipalType: model.PrincipalRole, PrincipalID: "admin"},
	}
}

// NewAccessTokenModel exposes token management over tokens. Configured
// settings are merged on top of the built-in rules. defaultTTL applies to
// tokens created without a ttl; zero means no expiry.
func NewAccessTokenModel(tokens *service.TokenService, settings model.ModelSettings, defaultTTL int64) *Model {
	settings.ACLs = append(AccessTokenACLs(), settings.ACLs...)
	m := NewModel(AccessTokenModelName, settings)

	m.Expose(Method{
		Name:        "create",
		AccessType:  model.AccessWrite,
		Description: "Issue a new access token",
		Handler: func(ctx context.Context, args Args) (interface{}, error) {
			attrs := service.TokenAttrs{}
			data, err := recordArg(args, "data")
			if err != nil {
				return nil, err
			}
			if v, ok := data["user_id"].(string); ok {
				attrs.UserID = v
			}
			if v, ok := data["app_id"].(string); ok {
				attrs.AppID = v
			}
			if raw, ok := data["ttl"]; ok && raw != nil {
				ttl, err := ttlArg(raw)
				if err != nil {
					return nil, err
				}
				attrs.TTL = &ttl
			} else if defaultTTL > 0 {
				attrs.TTL = model.Ptr(defaultTTL)
			}

			tok, err := tokens.Create(ctx, attrs)
			if errors.Is(err, service.ErrInvalidTTL) {
				return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
			}
			return tok, err
		},
	})
	m.Expose(Method{
		Name:        "findById",
		AccessType:  model.AccessRead,
		Description: "Look up an access token",
		Handler: func(ctx context.Context, args Args) (interface{}, error) {
			id, err := idArg(args)
			if err != nil {
				return nil, err
			}
			tok, err := tokens.FindByID(ctx, id)
			if errors.Is(err, service.ErrTokenNotFound) {
				return nil, fmt.Errorf("%w: %v", ErrRecordNotFound, err)
			}
			return tok, err
		},
	})
	m.Expose(Method{
		Name:        "deleteById",
		Aliases:     []string{"removeById", "destroyById"},
		AccessType:  model.AccessWrite,
		Description: "Revoke an access token",
		Handler: func(ctx context.Context, args Args) (interface{}, error) {
			id, err := idArg(args)
			if err != nil {
				return nil, err
			}
			err = tokens.Revoke(ctx, id)
			switch {
			case err == nil:
				return CountResult{Count: 1}, nil
			case errors.Is(err, service.ErrTokenNotFound):
				return CountResult{Count: 0}, nil
			}
			return nil, err
		},
	})
	return m
}

// ttlArg converts a decoded ttl to whole seconds. JSON numbers arrive as
// float64; fractions and values outside int64 are rejected.
func ttlArg(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: ttl must be a whole number of seconds", ErrInvalidArgument)
		}
		return int64(n), nil
	}
	return 0, fmt.Errorf("%w: ttl must be a number", ErrInvalidArgument)
}
