// internal/app/system/authz/authz.go
package authz

import (
	"github.com/dalemusser/cadence/internal/domain/models"
)

// Capability names one permitted action within a team.
type Capability string

const (
	ManageMembers      Capability = "manage_members"
	ManageAssignments  Capability = "manage_assignments"
	ManageRepertoire   Capability = "manage_repertoire"
	ViewInvitationCode Capability = "view_invitation_code"
	ViewAssignments    Capability = "view_assignments"
	DeclarePresence    Capability = "declare_presence"
	OverridePresence   Capability = "override_presence"
)

// allCapabilities is what super_admin holds, in every team.
var allCapabilities = []Capability{
	ManageMembers,
	ManageAssignments,
	ManageRepertoire,
	ViewInvitationCode,
	ViewAssignments,
	DeclarePresence,
	OverridePresence,
}

var roleCapabilities = map[models.Role][]Capability{
	models.RoleSuperAdmin: allCapabilities,
	models.RoleTeamAdmin: {
		ManageMembers,
		ManageAssignments,
		ManageRepertoire,
		ViewInvitationCode,
		ViewAssignments,
		DeclarePresence,
		OverridePresence,
	},
	models.RoleMember: {
		ViewAssignments,
		DeclarePresence,
	},
}

// Capabilities returns the capability set for role. Unknown roles get none.
// The returned slice is a copy.
func Capabilities(role models.Role) []Capability {
	caps := roleCapabilities[role]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

// Can reports whether role holds capability c.
func Can(role models.Role, c Capability) bool {
	for _, have := range roleCapabilities[role] {
		if have == c {
			return true
		}
	}
	return false
}

// CanManageTeam reports whether role is one of the management roles
// (super_admin or team_admin).
func CanManageTeam(role models.Role) bool {
	return role == models.RoleSuperAdmin || role == models.RoleTeamAdmin
}

// EffectiveRole resolves the role a user acts with inside a team.
// The cross-team super-admin flag wins over any membership role.
// ok is false when the user is neither super admin nor an active member.
func EffectiveRole(u *models.User, m *models.Membership) (role models.Role, ok bool) {
	if u != nil && u.IsSuperAdmin {
		return models.RoleSuperAdmin, true
	}
	if m == nil || !m.Active {
		return "", false
	}
	return m.Role, true
}
