package auth

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/faucetdb/tokengate/internal/model"
	"github.com/faucetdb/tokengate/internal/service"
)

// TokenFinder looks up a valid token by id. *service.TokenService satisfies
// it.
type TokenFinder interface {
	FindByID(ctx context.Context, id string) (*model.AccessToken, error)
}

// RoleLookup returns the roles granted to a user or app. *config.Store
// satisfies it.
type RoleLookup interface {
	RolesFor(ctx context.Context, principalType model.PrincipalType, principalID string) ([]string, error)
}

// Resolver turns the credentials on a request surface into a Context.
type Resolver struct {
	tokens     TokenFinder
	roles      RoleLookup
	extractors []Extractor
	logger     *slog.Logger
}

// NewResolver creates a resolver. roles may be nil, in which case principals
// carry no granted roles. A nil extractor list selects DefaultExtractors.
func NewResolver(tokens TokenFinder, roles RoleLookup, extractors []Extractor, logger *slog.Logger) *Resolver {
	if extractors == nil {
		extractors = DefaultExtractors()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{tokens: tokens, roles: roles, extractors: extractors, logger: logger}
}

// Candidates returns the distinct token ids found on the surface, in
// extractor order. Malformed credentials are skipped.
func (r *Resolver) Candidates(s *Surface) []string {
	var ids []string
	for _, extract := range r.extractors {
		id, err := extract(s)
		if err != nil {
			r.logger.Debug("ignoring malformed credential", "error", err)
			continue
		}
		if id == "" || slices.Contains(ids, id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Resolve returns the Context for the first candidate that names a valid
// token, or nil when none does. Only storage failures are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, s *Surface) (*Context, error) {
	for _, id := range r.Candidates(s) {
		tok, err := r.tokens.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, service.ErrTokenNotFound) {
				continue
			}
			return nil, err
		}
		principal, err := r.principalFor(ctx, tok)
		if err != nil {
			return nil, err
		}
		return &Context{Token: tok, Principal: principal}, nil
	}
	return nil, nil
}

func (r *Resolver) principalFor(ctx context.Context, tok *model.AccessToken) (*model.Principal, error) {
	p := &model.Principal{UserID: tok.UserID, AppID: tok.AppID}
	if r.roles == nil {
		return p, nil
	}

	lookups := []struct {
		typ model.PrincipalType
		id  string
	}{
		{model.PrincipalUser, tok.UserID},
		{model.PrincipalApp, tok.AppID},
	}
	for _, l := range lookups {
		if l.id == "" {
			continue
		}
		roles, err := r.roles.RolesFor(ctx, l.typ, l.id)
		if err != nil {
			return nil, &service.PersistenceError{Op: "roles", Err: err}
		}
		for _, role := range roles {
			if !slices.Contains(p.Roles, role) {
				p.Roles = append(p.Roles, role)
			}
		}
	}
	return p, nil
}
