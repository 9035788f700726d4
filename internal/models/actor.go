package models

import "strings"

// Role represents the permission level of an authenticated identity
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Actor is the identity performing an operation, passed explicitly into every service call
type Actor struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

// Profile is the one-to-one role record attached to an identity
type Profile struct {
	UserID int64 `json:"userId" db:"user_id"`
	Role   Role  `json:"role" db:"role"`
}

// ResolveRole maps a stored role value to a valid Role.
// Missing or unknown values resolve to RoleViewer.
func ResolveRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleEditor:
		return RoleEditor
	default:
		return RoleViewer
	}
}

// ResolveProfileRole returns the role carried by the profile, or RoleViewer when there is none.
func ResolveProfileRole(p *Profile) Role {
	if p == nil {
		return RoleViewer
	}
	return ResolveRole(string(p.Role))
}
