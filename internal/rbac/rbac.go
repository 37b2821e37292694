package rbac

type Role string
type Action string

const (
	RoleEditor     Role = "editor"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

const (
	// ActionRead lists and opens jobs in the admin panel.
	ActionRead Action = "read"
	// ActionWrite creates and edits jobs, including their rich text content.
	ActionWrite Action = "write"
	// ActionDelete removes jobs.
	ActionDelete Action = "delete"
	// ActionManage covers admin accounts.
	ActionManage Action = "manage"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleSuperAdmin:
		return true
	case RoleAdmin:
		return action == ActionRead || action == ActionWrite || action == ActionDelete
	case RoleEditor:
		return action == ActionRead || action == ActionWrite
	default:
		return false
	}
}

// Normalize maps unknown roles to the least privileged one.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleEditor, RoleAdmin, RoleSuperAdmin:
		return Role(role)
	default:
		return RoleEditor
	}
}

func Valid(role string) bool {
	return Normalize(role) == Role(role)
}
