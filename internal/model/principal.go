package model

import "slices"

// Principal is the identity derived from a resolved access token. UserID is
// empty for tokens that were issued without a user.
type Principal struct {
	UserID string   `json:"user_id,omitempty"`
	AppID  string   `json:"app_id,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

// HasRole reports whether the principal was granted the named role.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Roles, role)
}
