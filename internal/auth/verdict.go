// ABOUTME: Verdict and stable denial reason codes for the authorization pipeline
// ABOUTME: No internal error detail crosses the Authorize boundary

package auth

import (
	"github.com/northloop/pkggate/internal/store"
)

// Reason is a stable code the dispatcher can map to a transport-level error.
// Raw internal messages never accompany a denial.
type Reason string

const (
	// ReasonNone accompanies an allowed verdict.
	ReasonNone Reason = ""

	// ReasonAuthentication covers unknown identities and credential
	// mismatches alike, so a caller cannot probe which usernames exist.
	ReasonAuthentication Reason = "authentication_error"

	// ReasonAuthorization means the identity is known but its role lacks the
	// required capability.
	ReasonAuthorization Reason = "authorization_error"

	// ReasonPolicyViolation means a package name matched a block rule or
	// missed a required allow rule.
	ReasonPolicyViolation Reason = "policy_violation"

	// ReasonStorage means the credential store could not be read. The
	// pipeline fails closed on it.
	ReasonStorage Reason = "storage_error"
)

// Reason codes recorded for operation outcomes that follow an allowed
// decision.
const (
	ReasonDuplicateUser Reason = "duplicate_user"
	ReasonLastAdmin     Reason = "last_admin"
	ReasonAuditWrite    Reason = "audit_write_error"
)

// Verdict is the single result of an authorize call.
type Verdict struct {
	Allowed  bool
	Reason   Reason
	Identity *store.Identity // nil when no identity was established
}

// allowed builds an allowed verdict for the given identity (nil in open
// mode).
func allowed(id *store.Identity) Verdict {
	return Verdict{Allowed: true, Identity: id}
}

// denied builds a denied verdict, keeping the identity when one was
// established before the denial.
func denied(reason Reason, id *store.Identity) Verdict {
	return Verdict{Allowed: false, Reason: reason, Identity: id}
}
