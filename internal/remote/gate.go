package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/faucetdb/tokengate/internal/acl"
	"github.com/faucetdb/tokengate/internal/auth"
	"github.com/faucetdb/tokengate/internal/model"
)

// Verdict is the state of an authorization check.
type Verdict int

const (
	Pending Verdict = iota
	Allowed
	Denied
)

func (v Verdict) String() string {
	switch v {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	}
	return "pending"
}

// AuthorizationError is returned for a denied call. It carries only the
// status code so that rule details never reach the caller.
type AuthorizationError struct {
	Status int
}

func (e *AuthorizationError) Error() string {
	if e.Status == http.StatusUnauthorized {
		return "Authorization Required"
	}
	if text := http.StatusText(e.Status); text != "" {
		return text
	}
	return fmt.Sprintf("authorization failed (%d)", e.Status)
}

// RuleSource supplies ACL rules managed at runtime. *config.Store satisfies
// it.
type RuleSource interface {
	ListACLRules(ctx context.Context, modelName string) ([]model.ACLRule, error)
}

// Gate authorizes remote method calls against a model's ACLs.
type Gate struct {
	app    model.AppSettings
	rules  RuleSource
	logger *slog.Logger
}

// NewGate creates a gate. rules may be nil when only static model ACLs are
// used.
func NewGate(app model.AppSettings, rules RuleSource, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{app: app, rules: rules, logger: logger}
}

// Evaluate decides whether the caller in ctx may invoke meth on m. A
// non-nil error means the rules could not be loaded and the verdict is
// Pending.
func (g *Gate) Evaluate(ctx context.Context, m *Model, meth *Method) (Verdict, acl.Decision, error) {
	ac := auth.FromContext(ctx)

	if m.Settings.RequiresAuth(meth.AccessType) && !ac.Authenticated() {
		return Denied, acl.Decision{Permission: model.PermissionDeny}, nil
	}

	rules := m.Settings.ACLs
	if g.rules != nil {
		stored, err := g.rules.ListACLRules(ctx, m.Name)
		if err != nil {
			return Pending, acl.Decision{}, fmt.Errorf("load acl rules for %s: %w", m.Name, err)
		}
		if len(stored) > 0 {
			snapshot := make([]model.ACLRule, 0, len(rules)+len(stored))
			snapshot = append(snapshot, rules...)
			rules = append(snapshot, stored...)
		}
	}

	d := acl.Check(rules, acl.Request{
		Model:         m.Name,
		Property:      meth.Name,
		Aliases:       meth.Aliases,
		AccessType:    meth.AccessType,
		Principal:     ac.PrincipalOrNil(),
		Authenticated: ac.Authenticated(),
	}, model.DefaultPermission(m.Settings, g.app))

	if d.Allowed() {
		return Allowed, d, nil
	}
	return Denied, d, nil
}

// Authorize returns nil when the call may proceed and an
// *AuthorizationError when it is denied.
func (g *Gate) Authorize(ctx context.Context, m *Model, meth *Method) error {
	verdict, d, err := g.Evaluate(ctx, m, meth)
	if err != nil {
		return err
	}
	if verdict == Allowed {
		return nil
	}

	status := model.ACLErrorStatus(m.Settings, g.app)
	attrs := []any{
		"model", m.Name,
		"method", meth.Name,
		"access_type", string(meth.AccessType),
		"authenticated", auth.FromContext(ctx).Authenticated(),
		"status", status,
	}
	if d.Rule != nil {
		attrs = append(attrs, "rule", d.Rule.String())
	} else {
		attrs = append(attrs, "rule", "default")
	}
	g.logger.InfoContext(ctx, "remote call denied", attrs...)

	return &AuthorizationError{Status: status}
}
