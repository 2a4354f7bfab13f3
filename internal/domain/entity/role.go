// Package entity contains the core business objects of the project.
package entity

// Role represents the authorization level a principal holds.
type Role string

const (
	// RoleUser indicates a regular account.
	RoleUser Role = "user"
	// RoleAdmin indicates an administrator account.
	RoleAdmin Role = "admin"
)

// String returns the string representation of the Role.
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the Role is a valid value.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// Satisfies reports whether a principal holding r may act with the required role.
// Admins satisfy every role requirement.
func (r Role) Satisfies(required Role) bool {
	if r == RoleAdmin {
		return true
	}

	return r == required
}

// ParseRole converts a claim value into a Role, returning false for unknown values.
func ParseRole(s string) (Role, bool) {
	role := Role(s)

	return role, role.IsValid()
}
