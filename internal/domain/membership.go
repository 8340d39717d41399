package domain

import "time"

// Role enumerates per-organization capabilities.
type Role string

const (
	RoleAdminGlobal Role = "ADMIN_GLOBAL"
	RoleSindico     Role = "SINDICO"
	RoleZelador     Role = "ZELADOR"
	RolePortaria    Role = "PORTARIA"
	RoleMorador     Role = "MORADOR"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdminGlobal, RoleSindico, RoleZelador, RolePortaria, RoleMorador:
		return true
	}
	return false
}

// IsManagement reports whether the role manages tickets (admin, manager or caretaker).
func (r Role) IsManagement() bool {
	return r == RoleAdminGlobal || r == RoleSindico || r == RoleZelador
}

// Membership links a user to an organization with a role.
// At most one active membership exists per (user, organization).
type Membership struct {
	ID             string
	UserID         string
	OrganizationID string
	Role           Role
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
