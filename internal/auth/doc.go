// ABOUTME: Package documentation for the authorization pipeline
// ABOUTME: Describes the decision order and the audit guarantee

// Package auth decides whether a caller may perform an action.
//
// A decision runs in a fixed order: authenticate the credential, check the
// identity's role against the capability the action requires, then evaluate
// package policy for actions that introduce packages. The first failing
// stage produces the denial; later stages are not consulted, so a caller
// who fails authentication learns nothing about policy configuration.
//
// Every Authorize call produces exactly one audit record, allowed or
// denied. Audit persistence failures are reported to the operator log and
// never alter the verdict.
//
// Denials expose only a stable Reason code. Authentication failures are
// deliberately uniform: an unknown username and a wrong credential yield
// the same ReasonAuthentication.
package auth
