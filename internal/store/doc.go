// ABOUTME: Package documentation for the credential store
// ABOUTME: Describes the persisted file contract and concurrency discipline

// Package store persists user identities for pkggate.
//
// # File Contract
//
// Users live in a single JSON file:
//
//	{
//	  "users": [
//	    {
//	      "username": "admin",
//	      "credential_hash": "<sha-256 hex>",
//	      "role": "admin",
//	      "created_at": "2026-01-02T15:04:05Z"
//	    }
//	  ]
//	}
//
// The file is created with mode 0600 and rewritten atomically
// (write-temp-then-rename) on every mutation. Only the SHA-256 hash of a
// credential is ever stored; the plaintext is returned exactly once from
// CreateUser or BootstrapFirstAdmin.
//
// # Invariants
//
//   - Usernames are unique and case-sensitive.
//   - A non-empty store always contains at least one admin: deleting the sole
//     remaining admin fails with ErrLastAdmin.
//   - Users are never mutated in place. Rotating a credential or changing a
//     role is delete-then-recreate.
//
// # Concurrency
//
// Mutating operations hold an exclusive in-process mutex for the whole
// read-modify-persist cycle and re-read the file inside the lock, so
// decisions that lead to a write never act on a stale snapshot. Reads load a
// fresh snapshot without the lock; the atomic rename guarantees they never
// observe a partial write.
//
// # Failure Mode
//
// An unreadable or corrupt backing file surfaces as ErrStorage from every
// operation. Callers are expected to fail closed: deny privileged operations
// rather than treat the store as empty.
package store
