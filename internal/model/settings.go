package model

import "net/http"

// DefaultACLErrorStatus is returned on a denied call when neither the model
// nor the app configures a status.
const DefaultACLErrorStatus = http.StatusUnauthorized

// AppSettings are app-wide defaults that every model inherits.
type AppSettings struct {
	ACLErrorStatus    *int
	DefaultPermission *Permission
}

// ModelSettings are the per-model options loaded once at setup. They are not
// modified after registration.
type ModelSettings struct {
	ACLs              []ACLRule
	ACLErrorStatus    *int
	DefaultPermission *Permission

	// AuthRequired lists access types that refuse callers without a resolved
	// token, regardless of ACLs.
	AuthRequired []AccessType
}

// RequiresAuth reports whether the access type needs a resolved token.
func (s ModelSettings) RequiresAuth(at AccessType) bool {
	for _, t := range s.AuthRequired {
		if t == at || t == AccessAll {
			return true
		}
	}
	return false
}

// Resolve picks the model-level value, then the app-level value, then def.
func Resolve[T any](modelValue, appValue *T, def T) T {
	if modelValue != nil {
		return *modelValue
	}
	if appValue != nil {
		return *appValue
	}
	return def
}

// ACLErrorStatus resolves the status code returned for denied calls.
func ACLErrorStatus(m ModelSettings, app AppSettings) int {
	return Resolve(m.ACLErrorStatus, app.ACLErrorStatus, DefaultACLErrorStatus)
}

// DefaultPermission resolves the permission used when no rule applies.
func DefaultPermission(m ModelSettings, app AppSettings) Permission {
	return Resolve(m.DefaultPermission, app.DefaultPermission, PermissionAllow)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
