package rbac

import (
	"testing"

	"ruangkelas/pkg/types"
)

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   types.Role
		action Action
		allow  bool
	}{
		{name: "student read", role: types.RoleStudent, action: ActionRead, allow: true},
		{name: "student discuss", role: types.RoleStudent, action: ActionDiscuss, allow: true},
		{name: "student create material", role: types.RoleStudent, action: ActionCreateMaterial, allow: false},
		{name: "teacher create material", role: types.RoleTeacher, action: ActionCreateMaterial, allow: true},
		{name: "teacher create room", role: types.RoleTeacher, action: ActionCreateRoom, allow: false},
		{name: "principal create room", role: types.RolePrincipal, action: ActionCreateRoom, allow: true},
		{name: "principal manage users", role: types.RolePrincipal, action: ActionManageUsers, allow: true},
		{name: "unknown role read", role: types.Role("guest"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}
