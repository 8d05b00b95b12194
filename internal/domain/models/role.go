package models

// Role is a user's role within a team.
type Role string

const (
	RoleSuperAdmin Role = "super_admin" // cross-team
	RoleTeamAdmin  Role = "team_admin"
	RoleMember     Role = "member"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleTeamAdmin, RoleMember:
		return true
	}
	return false
}
