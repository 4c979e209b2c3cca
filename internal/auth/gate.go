// ABOUTME: Role-based permission gate with a static capability table
// ABOUTME: Admins hold every capability; regular users are read-only

package auth

import (
	"github.com/northloop/pkggate/internal/store"
)

// roleCapabilities is the static capability table. Extending the system with
// a new action category means adding it here for the roles that may use it;
// unrelated roles are untouched.
var roleCapabilities = map[store.Role]map[Capability]bool{
	store.RoleAdmin: {
		CapabilityRead:            true,
		CapabilityWrite:           true,
		CapabilityAdministerUsers: true,
	},
	store.RoleUser: {
		CapabilityRead: true,
	},
}

// RoleAllows reports whether a role holds a capability. Unknown roles hold
// nothing.
func RoleAllows(role store.Role, c Capability) bool {
	return roleCapabilities[role][c]
}

// Capabilities returns the capabilities a role holds, in a stable order.
func Capabilities(role store.Role) []Capability {
	var caps []Capability
	for _, c := range []Capability{CapabilityRead, CapabilityWrite, CapabilityAdministerUsers} {
		if roleCapabilities[role][c] {
			caps = append(caps, c)
		}
	}
	return caps
}
