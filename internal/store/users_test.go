// ABOUTME: Tests for the file-backed credential store
// ABOUTME: Covers creation, verification, last-admin protection, and fail-closed reads

package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	return s
}

func TestFileStore_CreateAndVerify(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user, credential, err := s.CreateUser(ctx, "alice", RoleAdmin, "")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, RoleAdmin, user.Role)
	assert.NotEmpty(t, credential)
	assert.NotEqual(t, credential, user.CredentialHash)
	assert.False(t, user.CreatedAt.IsZero())

	id, err := s.Verify(ctx, "alice", credential)
	require.NoError(t, err)
	assert.Equal(t, Identity{Username: "alice", Role: RoleAdmin}, id)
	assert.True(t, id.IsAdmin())
}

func TestFileStore_VerifyFailures(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, credential, err := s.CreateUser(ctx, "alice", RoleUser, "")
	require.NoError(t, err)

	tests := []struct {
		name       string
		username   string
		credential string
	}{
		{"wrong credential", "alice", "not-the-credential"},
		{"unknown user", "mallory", credential},
		{"empty credential", "alice", ""},
		{"empty credential unknown user", "mallory", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Verify(ctx, tt.username, tt.credential)
			// Failure reason must not be distinguishable.
			assert.ErrorIs(t, err, ErrAuthentication)
		})
	}
}

func TestFileStore_SuppliedCredential(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, credential, err := s.CreateUser(ctx, "bob", RoleUser, "chosen-secret")
	require.NoError(t, err)
	assert.Equal(t, "chosen-secret", credential)

	id, err := s.Verify(ctx, "bob", "chosen-secret")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, id.Role)
}

func TestFileStore_DuplicateUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, _, err := s.CreateUser(ctx, "alice", RoleAdmin, "")
	require.NoError(t, err)

	_, _, err = s.CreateUser(ctx, "alice", RoleUser, "")
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestFileStore_InvalidInput(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, _, err := s.CreateUser(ctx, "", RoleUser, "")
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, _, err = s.CreateUser(ctx, "   ", RoleUser, "")
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, _, err = s.CreateUser(ctx, "carol", Role("superuser"), "")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestFileStore_Resolve(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, adminCred, err := s.CreateUser(ctx, "alice", RoleAdmin, "")
	require.NoError(t, err)
	_, devCred, err := s.CreateUser(ctx, "dev", RoleUser, "")
	require.NoError(t, err)

	id, err := s.Resolve(ctx, adminCred)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Username)
	assert.Equal(t, RoleAdmin, id.Role)

	id, err = s.Resolve(ctx, devCred)
	require.NoError(t, err)
	assert.Equal(t, "dev", id.Username)
	assert.Equal(t, RoleUser, id.Role)

	_, err = s.Resolve(ctx, "unknown-credential")
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestFileStore_BootstrapFirstAdmin(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user, credential, err := s.BootstrapFirstAdmin(ctx, "admin", "")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, user.Role)
	assert.NotEmpty(t, credential)

	// A second bootstrap must be rejected.
	_, _, err = s.BootstrapFirstAdmin(ctx, "admin2", "")
	assert.ErrorIs(t, err, ErrUsersExist)
}

func TestFileStore_DeleteUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, _, err := s.BootstrapFirstAdmin(ctx, "admin", "")
	require.NoError(t, err)
	_, _, err = s.CreateUser(ctx, "dev", RoleUser, "")
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, "dev"))

	err = s.DeleteUser(ctx, "dev")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestFileStore_LastAdminProtection(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, _, err := s.BootstrapFirstAdmin(ctx, "admin", "")
	require.NoError(t, err)

	err = s.DeleteUser(ctx, "admin")
	assert.ErrorIs(t, err, ErrLastAdmin)

	// With a second admin present, either one may be deleted, but not both.
	_, _, err = s.CreateUser(ctx, "admin2", RoleAdmin, "")
	require.NoError(t, err)
	require.NoError(t, s.DeleteUser(ctx, "admin"))
	err = s.DeleteUser(ctx, "admin2")
	assert.ErrorIs(t, err, ErrLastAdmin)

	has, err := s.HasAdmin(ctx)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestFileStore_ListUsers(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	infos, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)

	_, _, err = s.CreateUser(ctx, "alice", RoleAdmin, "")
	require.NoError(t, err)
	_, _, err = s.CreateUser(ctx, "bob", RoleUser, "")
	require.NoError(t, err)

	infos, err = s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "alice", infos[0].Username)
	assert.Equal(t, RoleUser, infos[1].Role)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestFileStore_FileContract(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	_, credential, err := s.CreateUser(ctx, "alice", RoleAdmin, "")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var f struct {
		Users []map[string]string `json:"users"`
	}
	require.NoError(t, json.Unmarshal(data, &f))
	require.Len(t, f.Users, 1)

	record := f.Users[0]
	assert.Equal(t, "alice", record["username"])
	assert.Equal(t, "admin", record["role"])
	assert.Equal(t, HashCredential(credential), record["credential_hash"])
	assert.NotContains(t, string(data), credential)
	assert.NotEmpty(t, record["created_at"])
}

func TestFileStore_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}

	path := filepath.Join(t.TempDir(), "users.json")
	_, err := NewFileStore(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_CorruptFileFailsClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = s.CreateUser(ctx, "alice", RoleAdmin, "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err = s.Verify(ctx, "alice", "whatever")
	assert.ErrorIs(t, err, ErrStorage)

	_, err = s.Resolve(ctx, "whatever")
	assert.ErrorIs(t, err, ErrStorage)

	_, _, err = s.CreateUser(ctx, "bob", RoleUser, "")
	assert.ErrorIs(t, err, ErrStorage)

	err = s.DeleteUser(ctx, "alice")
	assert.ErrorIs(t, err, ErrStorage)
}

func TestFileStore_ConcurrentCreateSameUsername(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = s.CreateUser(ctx, "alice", RoleUser, "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrDuplicateUser)
		}
	}
	assert.Equal(t, 1, succeeded)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFileStore_ReopenExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	_, credential, err := s.CreateUser(ctx, "alice", RoleAdmin, "")
	require.NoError(t, err)

	reopened, err := NewFileStore(path)
	require.NoError(t, err)

	id, err := reopened.Verify(ctx, "alice", credential)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, id.Role)
}
