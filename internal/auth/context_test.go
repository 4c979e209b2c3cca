// ABOUTME: Tests for identity context propagation
// ABOUTME: Round-trips identities through a context and checks absence handling

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northloop/pkggate/internal/store"
)

func TestIdentityContext(t *testing.T) {
	id := store.Identity{Username: "alice", Role: store.RoleAdmin}
	ctx := WithIdentity(context.Background(), id)

	got, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, id, got)

	assert.Equal(t, id, MustIdentityFromContext(ctx))
}

func TestIdentityContextAbsent(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	assert.Panics(t, func() {
		MustIdentityFromContext(context.Background())
	})
}
