// ABOUTME: The authorization decision pipeline for package operations
// ABOUTME: Resolves identity, checks role capability and package policy, records audit

package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/northloop/pkggate/internal/audit"
	"github.com/northloop/pkggate/internal/policy"
	"github.com/northloop/pkggate/internal/store"
)

// LegacyUsername is the synthetic identity assigned in single-key mode.
const LegacyUsername = "legacy"

// Options controls which authentication modes the middleware runs in.
type Options struct {
	// EnableAuth gates the whole authentication layer. When false every
	// caller is anonymous, but policy checks and audit records still
	// apply.
	EnableAuth bool

	// EnableUserAuth resolves credentials against the user store. Takes
	// precedence over SingleAPIKeyMode when both are set.
	EnableUserAuth bool

	// SingleAPIKeyMode compares the presented credential against APIKey
	// and grants the legacy admin identity on match.
	SingleAPIKeyMode bool

	// APIKey is the shared secret for single-key mode.
	APIKey string
}

// Middleware makes allow/deny decisions for actions and writes one audit
// record per decision.
type Middleware struct {
	opts   Options
	users  store.UserStore
	policy *policy.Engine
	log    audit.Log
	logger *slog.Logger
}

// NewMiddleware builds a middleware. The user store may be nil when user
// auth is disabled; the policy engine and audit log are required.
func NewMiddleware(opts Options, users store.UserStore, engine *policy.Engine, log audit.Log, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		opts:   opts,
		users:  users,
		policy: engine,
		log:    log,
		logger: logger,
	}
}

// Authorize decides whether the holder of credential may perform action with
// the given params. Every call produces exactly one audit record; an audit
// write failure is surfaced to the operator log but never changes the
// verdict.
func (m *Middleware) Authorize(ctx context.Context, credential string, action Action, params map[string]any) Verdict {
	verdict := m.decide(ctx, credential, action, params)
	m.record(ctx, verdict, action, params)
	return verdict
}

func (m *Middleware) decide(ctx context.Context, credential string, action Action, params map[string]any) Verdict {
	identity, v := m.authenticate(ctx, credential)
	if v != nil {
		return *v
	}

	capability, known := CapabilityFor(action)
	if !known {
		return denied(ReasonAuthorization, identity)
	}

	// Anonymous callers in open mode carry full capability; the policy
	// check below still applies to them.
	if identity != nil && !RoleAllows(identity.Role, capability) {
		return denied(ReasonAuthorization, identity)
	}

	if RequiresPolicy(action) && m.policy != nil {
		if pattern, blocked := m.policy.FirstBlocked(Packages(params)); blocked {
			m.logger.Debug("package blocked by policy",
				"action", string(action),
				"package", pattern)
			return denied(ReasonPolicyViolation, identity)
		}
	}

	return allowed(identity)
}

// authenticate resolves the caller's identity. A nil Verdict means
// authentication passed; identity is nil for anonymous access in open mode.
func (m *Middleware) authenticate(ctx context.Context, credential string) (*store.Identity, *Verdict) {
	if !m.opts.EnableAuth {
		return nil, nil
	}

	if m.opts.EnableUserAuth {
		if m.users == nil {
			v := denied(ReasonStorage, nil)
			return nil, &v
		}
		id, err := m.users.Resolve(ctx, credential)
		if err != nil {
			if errors.Is(err, store.ErrStorage) {
				m.logger.Error("user store unavailable", "error", err)
				v := denied(ReasonStorage, nil)
				return nil, &v
			}
			v := denied(ReasonAuthentication, nil)
			return nil, &v
		}
		return &id, nil
	}

	if m.opts.SingleAPIKeyMode {
		if m.opts.APIKey == "" || !credentialMatch(credential, m.opts.APIKey) {
			v := denied(ReasonAuthentication, nil)
			return nil, &v
		}
		return &store.Identity{Username: LegacyUsername, Role: store.RoleAdmin}, nil
	}

	// Auth enabled but no mode configured: deny everything.
	v := denied(ReasonAuthentication, nil)
	return nil, &v
}

// credentialMatch compares two secrets in constant time. Both sides are
// hashed first so the comparison length never depends on the inputs.
func credentialMatch(presented, configured string) bool {
	a := sha256.Sum256([]byte(presented))
	b := sha256.Sum256([]byte(configured))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

func (m *Middleware) record(ctx context.Context, v Verdict, action Action, params map[string]any) {
	actor := audit.AnonymousActor
	if v.Identity != nil {
		actor = v.Identity.Username
	}

	outcome := audit.OutcomeAllowed
	if !v.Allowed {
		outcome = audit.OutcomeDenied
	}

	rec := audit.Record{
		Actor:   actor,
		Action:  string(action),
		Outcome: outcome,
		Reason:  string(v.Reason),
		Params:  audit.SanitizeParams(params),
	}
	if err := m.log.Append(ctx, &rec); err != nil {
		m.logger.Error("audit write failed",
			"actor", actor,
			"action", string(action),
			"outcome", string(outcome),
			"error", err)
	}
}
