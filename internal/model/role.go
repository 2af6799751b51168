package model

import "time"

// Role is a named group of principals that ACL rules can target with
// principal type ROLE.
type Role struct {
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// RoleMapping grants a role to a single user or app.
type RoleMapping struct {
	Role          string        `json:"role" db:"role"`
	PrincipalType PrincipalType `json:"principal_type" db:"principal_type"`
	PrincipalID   string        `json:"principal_id" db:"principal_id"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}
