// Package acl decides whether a caller may perform an access type on a model
// property, given a set of ALLOW and DENY rules.
package acl

import (
	"slices"

	"github.com/faucetdb/tokengate/internal/model"
)

// Request describes one access attempt.
type Request struct {
	Model      string
	Property   string
	Aliases    []string
	AccessType model.AccessType

	// Principal is nil for anonymous callers. Authenticated is true when a
	// token resolved, even if the token carries no user.
	Principal     *model.Principal
	Authenticated bool
}

// Decision is the outcome of Check. Rule is the rule that decided, or nil
// when the default permission applied. It is meant for logging only.
type Decision struct {
	Permission model.Permission
	Rule       *model.ACLRule
}

// Allowed reports whether the decision permits the call.
func (d Decision) Allowed() bool {
	return d.Permission == model.PermissionAllow
}

// specificity orders applicable rules. Fields compare in declaration order.
type specificity struct {
	property  int
	principal int
	access    int
}

func (s specificity) compare(o specificity) int {
	switch {
	case s.property != o.property:
		return s.property - o.property
	case s.principal != o.principal:
		return s.principal - o.principal
	default:
		return s.access - o.access
	}
}

// Check evaluates rules against req. The most specific applicable rule wins;
// among equally specific rules DENY wins. With no applicable rule the result
// is def.
func Check(rules []model.ACLRule, req Request, def model.Permission) Decision {
	var (
		best    *model.ACLRule
		bestSpc specificity
	)
	for i := range rules {
		r := &rules[i]
		spc, ok := applies(r, req)
		if !ok {
			continue
		}
		if best == nil {
			best, bestSpc = r, spc
			continue
		}
		c := spc.compare(bestSpc)
		if c > 0 || (c == 0 && r.Permission == model.PermissionDeny && best.Permission != model.PermissionDeny) {
			best, bestSpc = r, spc
		}
	}
	if best == nil {
		return Decision{Permission: def}
	}
	return Decision{Permission: best.Permission, Rule: best}
}

// applies reports whether r matches req and how specific the match is.
func applies(r *model.ACLRule, req Request) (specificity, bool) {
	var spc specificity

	if r.Model != "" && r.Model != model.AllModels && r.Model != req.Model {
		return spc, false
	}

	switch {
	case r.Property == "":
	case r.Property == req.Property || slices.Contains(req.Aliases, r.Property):
		spc.property = 1
	default:
		return spc, false
	}

	switch r.AccessType {
	case model.AccessAll:
	case req.AccessType:
		spc.access = 1
	default:
		return spc, false
	}

	rank, ok := matchPrincipal(r, req)
	if !ok {
		return spc, false
	}
	spc.principal = rank
	return spc, true
}

// matchPrincipal ranks specific ids above named roles above wildcards.
func matchPrincipal(r *model.ACLRule, req Request) (int, bool) {
	p := req.Principal
	switch r.PrincipalType {
	case model.PrincipalAny:
		// An id without a type names nobody; such rules never match.
		return 0, r.PrincipalID == ""
	case model.PrincipalUser:
		return 2, p != nil && p.UserID != "" && p.UserID == r.PrincipalID
	case model.PrincipalApp:
		return 2, p != nil && p.AppID != "" && p.AppID == r.PrincipalID
	case model.PrincipalRole:
		switch r.PrincipalID {
		case model.RoleEveryone:
			return 0, true
		case model.RoleAuthenticated:
			return 0, req.Authenticated
		case model.RoleUnauthenticated:
			return 0, !req.Authenticated
		default:
			return 1, p.HasRole(r.PrincipalID)
		}
	}
	return 0, false
}
