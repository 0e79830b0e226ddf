package models

import "strings"

// Role is the normalized role an actor holds within the attendance subsystem.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// NormalizeRole maps a raw role claim onto the subsystem's role set.
// super_admin collapses into admin; anything unrecognized yields an empty role.
func NormalizeRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "teacher":
		return RoleTeacher
	case "admin", "super_admin":
		return RoleAdmin
	default:
		return ""
	}
}

// Actor is the resolved identity performing an attendance operation.
type Actor struct {
	ID   uint
	Role Role
}

// Resolved reports whether the actor carries a usable identity and role.
func (a Actor) Resolved() bool {
	return a.ID != 0 && (a.Role == RoleTeacher || a.Role == RoleAdmin)
}

// IsTeacher returns true for teacher actors.
func (a Actor) IsTeacher() bool {
	return a.Role == RoleTeacher
}

// IsAdmin returns true for admin actors.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
