// ABOUTME: JSON file-backed credential store with atomic temp-then-rename writes
// ABOUTME: Credentials are stored as SHA-256 hashes and compared in constant time

package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// usersFile is the persisted file layout. The field names are a stable
// contract shared with other tooling reading the same file.
type usersFile struct {
	Users []userRecord `json:"users"`
}

type userRecord struct {
	Username       string `json:"username"`
	CredentialHash string `json:"credential_hash"`
	Role           string `json:"role"`
	CreatedAt      string `json:"created_at"`
}

// FileStore implements UserStore on a single JSON file. All mutating
// operations hold an exclusive mutex across the read-modify-persist cycle so
// that concurrent writers are linearized. Reads load a fresh snapshot; the
// atomic rename on persist guarantees a reader never observes a torn file.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileStore opens (or creates) the credential store at path. The file is
// created with owner-only permissions, as is its parent directory.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		logger: slog.Default().With("component", "store"),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.persist(nil); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return s, nil
}

// HashCredential returns the hex-encoded SHA-256 digest of a raw credential.
func HashCredential(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateCredential returns a new random URL-safe credential with 256 bits
// of entropy.
func GenerateCredential() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating credential: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// credentialEqual compares two hex digests in constant time.
func credentialEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// load reads and decodes the backing file. A missing file is an empty store;
// an unreadable or corrupt file is ErrStorage so that callers fail closed
// instead of silently treating the store as empty.
func (s *FileStore) load() ([]User, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var f usersFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	users := make([]User, 0, len(f.Users))
	for _, r := range f.Users {
		createdAt, err := time.Parse(time.RFC3339, r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing created_at for %q: %v", ErrStorage, r.Username, err)
		}
		users = append(users, User{
			Username:       r.Username,
			CredentialHash: r.CredentialHash,
			Role:           Role(r.Role),
			CreatedAt:      createdAt,
		})
	}
	return users, nil
}

// persist writes the user set to a temp file and atomically renames it over
// the backing file, then re-applies owner-only permissions.
func (s *FileStore) persist(users []User) error {
	records := make([]userRecord, 0, len(users))
	for _, u := range users {
		records = append(records, userRecord{
			Username:       u.Username,
			CredentialHash: u.CredentialHash,
			Role:           string(u.Role),
			CreatedAt:      u.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	data, err := json.MarshalIndent(usersFile{Users: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding users file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing users file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing users file: %w", err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("setting users file permissions: %w", err)
	}
	return nil
}

// CreateUser creates a user under the exclusive store lock.
func (s *FileStore) CreateUser(ctx context.Context, username string, role Role, rawCredential string) (*User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(ctx, username, role, rawCredential)
}

// createLocked performs the read-modify-persist cycle. The caller must hold
// s.mu.
func (s *FileStore) createLocked(ctx context.Context, username string, role Role, rawCredential string) (*User, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, "", ErrInvalidUsername
	}
	if !role.Valid() {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	users, err := s.load()
	if err != nil {
		return nil, "", err
	}

	for _, u := range users {
		if u.Username == username {
			return nil, "", fmt.Errorf("%w: %q", ErrDuplicateUser, username)
		}
	}

	if rawCredential == "" {
		rawCredential, err = GenerateCredential()
		if err != nil {
			return nil, "", err
		}
	}

	user := User{
		Username:       username,
		CredentialHash: HashCredential(rawCredential),
		Role:           role,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.persist(append(users, user)); err != nil {
		return nil, "", err
	}

	s.logger.Info("user created", "username", username, "role", role)
	return &user, rawCredential, nil
}

// BootstrapFirstAdmin creates the first admin. This is the only legitimate
// way to create a user without an authenticated admin session.
func (s *FileStore) BootstrapFirstAdmin(ctx context.Context, username, rawCredential string) (*User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return nil, "", err
	}
	if len(users) > 0 {
		return nil, "", ErrUsersExist
	}

	return s.createLocked(ctx, username, RoleAdmin, rawCredential)
}

// Verify checks a username/credential pair. The supplied credential is always
// hashed and compared, even for unknown usernames, so that the failure mode
// is uniform in both timing and reported error.
func (s *FileStore) Verify(ctx context.Context, username, rawCredential string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	users, err := s.load()
	if err != nil {
		return Identity{}, err
	}

	providedHash := HashCredential(rawCredential)

	var match *User
	for i := range users {
		if users[i].Username == username {
			match = &users[i]
			break
		}
	}

	storedHash := HashCredential("")
	if match != nil {
		storedHash = match.CredentialHash
	}

	if !credentialEqual(providedHash, storedHash) || match == nil {
		return Identity{}, ErrAuthentication
	}

	return Identity{Username: match.Username, Role: match.Role}, nil
}

// Resolve maps a raw credential to its identity by comparing against every
// stored hash.
func (s *FileStore) Resolve(ctx context.Context, rawCredential string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	users, err := s.load()
	if err != nil {
		return Identity{}, err
	}

	providedHash := HashCredential(rawCredential)

	var match *User
	for i := range users {
		if credentialEqual(providedHash, users[i].CredentialHash) && match == nil {
			match = &users[i]
		}
	}

	if match == nil {
		return Identity{}, ErrAuthentication
	}
	return Identity{Username: match.Username, Role: match.Role}, nil
}

// DeleteUser removes a user under the exclusive store lock. The admin count
// is re-checked against a fresh snapshot inside the lock so a concurrent
// deletion cannot race the last-admin protection.
func (s *FileStore) DeleteUser(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	users, err := s.load()
	if err != nil {
		return err
	}

	var target *User
	adminCount := 0
	for i := range users {
		if users[i].Role == RoleAdmin {
			adminCount++
		}
		if users[i].Username == username {
			target = &users[i]
		}
	}

	if target == nil {
		return fmt.Errorf("%w: %q", ErrUserNotFound, username)
	}
	if target.Role == RoleAdmin && adminCount == 1 {
		return ErrLastAdmin
	}

	remaining := make([]User, 0, len(users)-1)
	for _, u := range users {
		if u.Username != username {
			remaining = append(remaining, u)
		}
	}

	if err := s.persist(remaining); err != nil {
		return err
	}

	s.logger.Info("user deleted", "username", username)
	return nil
}

// ListUsers returns role and creation metadata for all users, never the
// credential hashes.
func (s *FileStore) ListUsers(ctx context.Context) ([]UserInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	users, err := s.load()
	if err != nil {
		return nil, err
	}

	infos := make([]UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, UserInfo{
			Username:  u.Username,
			Role:      u.Role,
			CreatedAt: u.CreatedAt,
		})
	}
	return infos, nil
}

// HasAdmin reports whether any admin exists.
func (s *FileStore) HasAdmin(ctx context.Context) (bool, error) {
	users, err := s.load()
	if err != nil {
		return false, err
	}
	for _, u := range users {
		if u.Role == RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

// Count returns the number of users.
func (s *FileStore) Count(ctx context.Context) (int, error) {
	users, err := s.load()
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

// Ensure FileStore implements UserStore.
var _ UserStore = (*FileStore)(nil)
