package enums

import "fmt"

// AdminRole scopes what a bearer token may do on the admin surface.
type AdminRole string

const (
	AdminRoleOperator AdminRole = "operator"
	AdminRoleViewer   AdminRole = "viewer"
)

func (r AdminRole) IsValid() bool {
	return r == AdminRoleOperator || r == AdminRoleViewer
}

// CanMutate reports whether the role may call state-changing admin endpoints.
func (r AdminRole) CanMutate() bool {
	return r == AdminRoleOperator
}

func ParseAdminRole(value string) (AdminRole, error) {
	role := AdminRole(value)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid admin role %q", value)
	}
	return role, nil
}
