// ABOUTME: Identity propagation through request contexts
// ABOUTME: Provides WithIdentity/IdentityFromContext for downstream handlers

package auth

import (
	"context"

	"github.com/northloop/pkggate/internal/store"
)

// identityKey is the context key type for the request identity.
type identityKey struct{}

// WithIdentity returns a new context carrying the identity.
func WithIdentity(ctx context.Context, id store.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext retrieves the identity, reporting whether one is
// present.
func IdentityFromContext(ctx context.Context) (store.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(store.Identity)
	return id, ok
}

// MustIdentityFromContext retrieves the identity, panicking if absent. Use
// only in handlers that run strictly after authorization.
func MustIdentityFromContext(ctx context.Context) store.Identity {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		panic("auth: identity not found in context")
	}
	return id
}
