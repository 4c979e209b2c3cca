// ABOUTME: Audit record types, sanitization, and the Log interface
// ABOUTME: Records are immutable once appended and strictly ordered by arrival

package audit

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrWrite is returned when a record cannot be appended. An append failure
// never reverses an authorization decision already made; it is surfaced to
// an operator-visible channel by the caller.
var ErrWrite = errors.New("audit write failed")

// AnonymousActor is recorded when a decision was made without an
// authenticated identity (open mode or failed authentication).
const AnonymousActor = "anonymous"

// Outcome classifies what happened to an authorization attempt or the
// operation that followed it.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
	OutcomeError   Outcome = "error"
)

// Record is a single audit log entry. ID, Seq, and Timestamp are assigned on
// append if unset.
type Record struct {
	ID        string         // UUID v4
	Seq       int64          // monotonically increasing arrival order
	Actor     string         // username or AnonymousActor
	Action    string         // operation identifier
	Outcome   Outcome        // allowed, denied, or error
	Reason    string         // stable reason code for denied/error outcomes
	Params    map[string]any // sanitized operation parameters
	Timestamp time.Time
}

// Filter selects audit records for listing.
type Filter struct {
	Since   *time.Time // records at or after this time
	Until   *time.Time // records at or before this time
	Actor   *string    // filter by actor
	Action  *string    // filter by action
	Outcome *Outcome   // filter by outcome
	Limit   int        // max results (default 100, max 1000)
}

// Log is an append-only, durable record of authorization decisions and
// operation outcomes.
type Log interface {
	// Append adds a record to the log. Entries are strictly ordered by
	// arrival even under concurrent callers.
	Append(ctx context.Context, r *Record) error

	// List returns records matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]Record, error)

	// Close releases any resources held by the log.
	Close() error
}

// sensitiveKeySubstrings marks parameter keys whose values must never be
// persisted.
var sensitiveKeySubstrings = []string{
	"password",
	"api_key",
	"apikey",
	"token",
	"secret",
	"credential",
	"key",
}

const redacted = "***REDACTED***"

// SanitizeParams returns a copy of params with secret-bearing values
// replaced. The input map is not modified.
func SanitizeParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}

	sanitized := make(map[string]any, len(params))
	for k, v := range params {
		if isSensitiveKey(k) {
			sanitized[k] = redacted
			continue
		}
		sanitized[k] = v
	}
	return sanitized
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeySubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
