// ABOUTME: Closed action vocabulary and the capability each action requires
// ABOUTME: Maps dispatcher operation names onto read/write/administer-users

package auth

// Action identifies an operation requested by the dispatcher.
type Action string

// Read-only introspection actions.
const (
	ActionListResources Action = "list_resources"
	ActionReadResource  Action = "read_resource"
	ActionListTools     Action = "list_tools"
	ActionListPrompts   Action = "list_prompts"
	ActionGetPrompt     Action = "get_prompt"
)

// Package mutation actions.
const (
	ActionInstall   Action = "install"
	ActionUninstall Action = "uninstall"
	ActionAdd       Action = "add"
	ActionRemove    Action = "remove"
	ActionSync      Action = "sync"
	ActionLock      Action = "lock"
	ActionInit      Action = "init"
	ActionUpgrade   Action = "upgrade"
)

// User administration actions.
const (
	ActionCreateUser Action = "create_user"
	ActionDeleteUser Action = "delete_user"
	ActionListUsers  Action = "list_users"
	ActionReadAudit  Action = "read_audit"
)

// Capability is an action category a role may hold.
type Capability string

const (
	CapabilityRead            Capability = "read"
	CapabilityWrite           Capability = "write"
	CapabilityAdministerUsers Capability = "administer_users"
)

// actionCapabilities is the closed mapping from action to required
// capability. Actions outside this table are denied: new operations must be
// classified here before the gate will pass them.
var actionCapabilities = map[Action]Capability{
	ActionListResources: CapabilityRead,
	ActionReadResource:  CapabilityRead,
	ActionListTools:     CapabilityRead,
	ActionListPrompts:   CapabilityRead,
	ActionGetPrompt:     CapabilityRead,

	ActionInstall:   CapabilityWrite,
	ActionUninstall: CapabilityWrite,
	ActionAdd:       CapabilityWrite,
	ActionRemove:    CapabilityWrite,
	ActionSync:      CapabilityWrite,
	ActionLock:      CapabilityWrite,
	ActionInit:      CapabilityWrite,
	ActionUpgrade:   CapabilityWrite,

	ActionCreateUser: CapabilityAdministerUsers,
	ActionDeleteUser: CapabilityAdministerUsers,
	ActionListUsers:  CapabilityAdministerUsers,
	ActionReadAudit:  CapabilityAdministerUsers,
}

// CapabilityFor returns the capability required for an action. The second
// return is false for actions outside the closed set.
func CapabilityFor(a Action) (Capability, bool) {
	c, ok := actionCapabilities[a]
	return c, ok
}

// policyActions are the actions that introduce package names into the
// environment and therefore run through the policy engine.
var policyActions = map[Action]bool{
	ActionInstall: true,
	ActionAdd:     true,
}

// RequiresPolicy reports whether the action's package names must pass policy
// evaluation.
func RequiresPolicy(a Action) bool {
	return policyActions[a]
}

// Packages extracts the package spec list from action parameters. JSON
// decoding produces []any, so both representations are handled.
func Packages(params map[string]any) []string {
	raw, ok := params["packages"]
	if !ok {
		return nil
	}

	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		specs := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				specs = append(specs, s)
			}
		}
		return specs
	default:
		return nil
	}
}
