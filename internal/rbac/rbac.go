package rbac

import "ruangkelas/pkg/types"

type Action string

const (
	ActionRead           Action = "read"
	ActionDiscuss        Action = "discuss"
	ActionCreateMaterial Action = "create_material"
	ActionCreateRoom     Action = "create_room"
	ActionManageUsers    Action = "manage_users"
)

func Can(role types.Role, action Action) bool {
	switch role {
	case types.RolePrincipal:
		return true
	case types.RoleTeacher:
		return action == ActionRead || action == ActionDiscuss || action == ActionCreateMaterial
	case types.RoleStudent:
		return action == ActionRead || action == ActionDiscuss
	default:
		return false
	}
}
