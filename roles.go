package auth

import "slices"

// Permission names, shared with the client route table
const (
	PermissionViewCollaborators   = "view collaborators"
	PermissionAddCollaborators    = "add collaborators"
	PermissionEditCollaborators   = "edit collaborators"
	PermissionDeleteCollaborators = "delete collaborators"
	PermissionManageAccounts      = "manage accounts"
)

// UserRole is the user's role
type UserRole string

const (
	// RoleCollaborator is a regular employee, can only see its own profile
	RoleCollaborator UserRole = "collaborator"
	// RoleProjectManager has no collaborator permissions
	RoleProjectManager UserRole = "project manager"
	// RoleHumanResources manages collaborator records
	RoleHumanResources UserRole = "human resources manager"
	// RoleAdmin has every permission
	RoleAdmin UserRole = "admin"
)

var rolePermissions = map[UserRole][]string{
	RoleCollaborator:   {},
	RoleProjectManager: {},
	RoleHumanResources: {
		PermissionViewCollaborators,
		PermissionAddCollaborators,
		PermissionEditCollaborators,
		PermissionDeleteCollaborators,
	},
	RoleAdmin: AllPermissions(),
}

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// Permissions returns a copy of the permissions granted to the role
func (r UserRole) Permissions() []string {
	perms := rolePermissions[r]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// Can checks if this role grants the permission
func (r UserRole) Can(permission string) bool {
	return slices.Contains(rolePermissions[r], permission)
}

// AllPermissions returns every known permission
func AllPermissions() []string {
	return []string{
		PermissionViewCollaborators,
		PermissionAddCollaborators,
		PermissionEditCollaborators,
		PermissionDeleteCollaborators,
		PermissionManageAccounts,
	}
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleCollaborator,
		RoleProjectManager,
		RoleHumanResources,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}
