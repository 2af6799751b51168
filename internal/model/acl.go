package model

import (
	"fmt"
	"strings"
	"time"
)

// AccessType is the category of operation an ACL rule governs.
type AccessType string

const (
	AccessRead    AccessType = "READ"
	AccessWrite   AccessType = "WRITE"
	AccessExecute AccessType = "EXECUTE"
	AccessAll     AccessType = "*"
)

// Permission is the outcome an ACL rule grants.
type Permission string

const (
	PermissionAllow Permission = "ALLOW"
	PermissionDeny  Permission = "DENY"
)

// PrincipalType selects what PrincipalID on a rule refers to. The empty type
// matches every caller.
type PrincipalType string

const (
	PrincipalAny  PrincipalType = ""
	PrincipalRole PrincipalType = "ROLE"
	PrincipalUser PrincipalType = "USER"
	PrincipalApp  PrincipalType = "APP"
)

// Dynamic roles are computed per request rather than granted through role
// mappings.
const (
	RoleEveryone        = "$everyone"
	RoleAuthenticated   = "$authenticated"
	RoleUnauthenticated = "$unauthenticated"
)

// AllModels is the model name store-backed rules use to apply everywhere.
const AllModels = "*"

// ACLRule grants or denies one access type on a model property to a class of
// principals.
type ACLRule struct {
	ID            string        `json:"id,omitempty" db:"id" yaml:"-"`
	Model         string        `json:"model,omitempty" db:"model" yaml:"-"`
	Property      string        `json:"property,omitempty" db:"property" yaml:"property"`
	AccessType    AccessType    `json:"access_type" db:"access_type" yaml:"access_type"`
	Permission    Permission    `json:"permission" db:"permission" yaml:"permission"`
	PrincipalType PrincipalType `json:"principal_type" db:"principal_type" yaml:"principal_type"`
	PrincipalID   string        `json:"principal_id" db:"principal_id" yaml:"principal_id"`
	CreatedAt     time.Time     `json:"created_at,omitempty" db:"created_at" yaml:"-"`
}

// Normalize canonicalises spelling: upper-case enums, "*" property meaning
// all properties, and an empty access type meaning all.
func (r ACLRule) Normalize() ACLRule {
	r.AccessType = AccessType(strings.ToUpper(strings.TrimSpace(string(r.AccessType))))
	if r.AccessType == "" || r.AccessType == "ALL" {
		r.AccessType = AccessAll
	}
	r.Permission = Permission(strings.ToUpper(strings.TrimSpace(string(r.Permission))))
	r.PrincipalType = PrincipalType(strings.ToUpper(strings.TrimSpace(string(r.PrincipalType))))
	if r.PrincipalType == "ANY" || r.PrincipalType == "*" {
		r.PrincipalType = PrincipalAny
	}
	r.PrincipalID = strings.TrimSpace(r.PrincipalID)
	if r.PrincipalType == PrincipalAny && IsDynamicRole(r.PrincipalID) {
		r.PrincipalType = PrincipalRole
	}
	r.Property = strings.TrimSpace(r.Property)
	if r.Property == "*" {
		r.Property = ""
	}
	return r
}

// Validate reports the first invalid field of a normalized rule.
func (r ACLRule) Validate() error {
	if _, err := ParseAccessType(string(r.AccessType)); err != nil {
		return err
	}
	if _, err := ParsePermission(string(r.Permission)); err != nil {
		return err
	}
	switch r.PrincipalType {
	case PrincipalAny:
		if r.PrincipalID != "" {
			return fmt.Errorf("acl rule: principal_id %q needs a principal_type", r.PrincipalID)
		}
	case PrincipalRole, PrincipalUser, PrincipalApp:
		if r.PrincipalID == "" {
			return fmt.Errorf("acl rule: principal_id is required for principal_type %s", r.PrincipalType)
		}
	default:
		return fmt.Errorf("acl rule: unknown principal_type %q", r.PrincipalType)
	}
	return nil
}

// String renders the rule for logs and CLI output.
func (r ACLRule) String() string {
	prop := r.Property
	if prop == "" {
		prop = "*"
	}
	who := r.PrincipalID
	if r.PrincipalType != PrincipalAny {
		who = string(r.PrincipalType) + ":" + r.PrincipalID
	} else if who == "" {
		who = "*"
	}
	return fmt.Sprintf("%s %s %s on %s", r.Permission, who, r.AccessType, prop)
}

// ParseAccessType accepts READ, WRITE, EXECUTE, ALL or "*" in any case.
func ParseAccessType(s string) (AccessType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "READ":
		return AccessRead, nil
	case "WRITE":
		return AccessWrite, nil
	case "EXECUTE":
		return AccessExecute, nil
	case "*", "ALL", "":
		return AccessAll, nil
	}
	return "", fmt.Errorf("unknown access type %q", s)
}

// ParsePermission accepts ALLOW or DENY in any case.
func ParsePermission(s string) (Permission, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ALLOW":
		return PermissionAllow, nil
	case "DENY":
		return PermissionDeny, nil
	}
	return "", fmt.Errorf("unknown permission %q", s)
}

// IsDynamicRole reports whether name is one of the computed roles.
func IsDynamicRole(name string) bool {
	switch name {
	case RoleEveryone, RoleAuthenticated, RoleUnauthenticated:
		return true
	}
	return false
}
