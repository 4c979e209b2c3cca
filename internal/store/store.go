// ABOUTME: Credential store entities, errors, and the UserStore interface
// ABOUTME: Users are owned by the store and mutated only through create/delete

package store

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound is returned when a requested user does not exist.
var ErrUserNotFound = errors.New("user not found")

// ErrDuplicateUser is returned when creating a user whose username is taken.
var ErrDuplicateUser = errors.New("user already exists")

// ErrLastAdmin is returned when deleting the only remaining admin.
var ErrLastAdmin = errors.New("cannot delete the last admin user")

// ErrAuthentication is returned for any credential verification failure.
// It deliberately does not distinguish an unknown username from a wrong
// credential.
var ErrAuthentication = errors.New("authentication failed")

// ErrUsersExist is returned when bootstrapping a first admin on a non-empty
// store.
var ErrUsersExist = errors.New("users already exist")

// ErrStorage is returned when the backing file is unreadable or corrupt.
// Callers must treat it as a fail-closed condition: no privileged operation
// may proceed while the store cannot be read.
var ErrStorage = errors.New("credential store unreadable")

// ErrInvalidUsername is returned for empty or whitespace-only usernames.
var ErrInvalidUsername = errors.New("username cannot be empty")

// ErrInvalidRole is returned for a role outside the closed role set.
var ErrInvalidRole = errors.New("invalid role")

// Role is the closed set of roles a user can hold.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ValidRoles lists all valid roles.
var ValidRoles = []Role{RoleAdmin, RoleUser}

// Valid reports whether the role is a member of the closed role set.
func (r Role) Valid() bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User is a persisted identity record. The credential is stored only as a
// one-way hash; the plaintext is returned exactly once at creation time.
type User struct {
	Username       string
	CredentialHash string
	Role           Role
	CreatedAt      time.Time
}

// UserInfo is the listing view of a user. It never carries the credential
// hash.
type UserInfo struct {
	Username  string
	Role      Role
	CreatedAt time.Time
}

// Identity is the request-scoped result of credential verification. It has no
// lifecycle beyond the request that produced it.
type Identity struct {
	Username string
	Role     Role
}

// IsAdmin reports whether the identity holds the admin role.
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

// UserStore defines durable, concurrency-safe identity persistence and
// verification.
type UserStore interface {
	// CreateUser creates a user and returns it along with the plaintext
	// credential. A random credential is generated when rawCredential is
	// empty. The plaintext is never retrievable again.
	CreateUser(ctx context.Context, username string, role Role, rawCredential string) (*User, string, error)

	// BootstrapFirstAdmin creates the first admin. It is permitted only while
	// the store is empty and fails with ErrUsersExist otherwise.
	BootstrapFirstAdmin(ctx context.Context, username, rawCredential string) (*User, string, error)

	// Verify checks a username/credential pair and returns the identity on
	// match. Any failure is reported as ErrAuthentication.
	Verify(ctx context.Context, username, rawCredential string) (Identity, error)

	// Resolve maps a raw credential to the identity it belongs to. Any
	// failure is reported as ErrAuthentication.
	Resolve(ctx context.Context, rawCredential string) (Identity, error)

	// DeleteUser removes a user. Deleting the sole remaining admin fails with
	// ErrLastAdmin.
	DeleteUser(ctx context.Context, username string) error

	// ListUsers returns role and creation metadata for all users.
	ListUsers(ctx context.Context) ([]UserInfo, error)

	// HasAdmin reports whether any admin exists.
	HasAdmin(ctx context.Context) (bool, error)

	// Count returns the number of users.
	Count(ctx context.Context) (int, error)
}
