package models

// Role is the authorization role asserted by the identity provider.
type Role string

const (
	RoleMember     Role = "member"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
	RoleSupport    Role = "support"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleAdmin, RoleSuperAdmin, RoleSupport:
		return true
	}
	return false
}

// IsStaff reports whether r may read other users' data.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleSuperAdmin || r == RoleSupport
}

// Actor is the authenticated caller of an engine operation.
// The engine never authenticates; it trusts the identity collaborator.
type Actor struct {
	UserID string
	Role   Role
}

// SystemActor is used for background jobs (cycle opening, payout promotion).
var SystemActor = Actor{UserID: "system", Role: RoleSuperAdmin}
