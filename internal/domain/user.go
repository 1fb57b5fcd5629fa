package domain

// Role is the role claim carried by bearer tokens. Marketplace users hold
// RoleUser; backend services that emit events hold RoleService.
type Role string

// Roles.
const (
	RoleUser     Role = "user"
	RoleService  Role = "service"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRank = map[Role]int{
	RoleUser:     1,
	RoleService:  2,
	RoleOperator: 3,
	RoleAdmin:    4,
}

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}

// HasPermission reports whether r grants at least the permissions of required.
func (r Role) HasPermission(required Role) bool {
	return roleRank[r] >= roleRank[required] && r.IsValid()
}
