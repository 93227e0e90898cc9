// Package user defines the user identity catalogue types.
package user

// Role is a user's fixed role, set at provisioning time.
type Role int

// User roles.
const (
	RoleAdmin Role = iota
	RoleProjectManager
	RoleDeveloper
	RoleTester
)

// String returns the human-readable role name.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleProjectManager:
		return "Project Manager"
	case RoleDeveloper:
		return "Developer"
	case RoleTester:
		return "Tester"
	default:
		return "Unknown"
	}
}

// CanAssignTasks reports whether the role may execute task assignment.
func (r Role) CanAssignTasks() bool {
	return r == RoleAdmin || r == RoleProjectManager
}

// User is a provisioned identity. Identity and role are read-only after
// provisioning; online state is owned by the session registry, not the user.
type User struct {
	ID       int
	Username string
	Email    string
	Role     Role
}
