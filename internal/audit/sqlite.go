// ABOUTME: SQLite-backed append-only audit log using modernc.org/sqlite
// ABOUTME: A single-writer mutex keeps entries strictly ordered by arrival

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// SQLiteLog implements Log on a local SQLite database. The seq column is an
// AUTOINCREMENT primary key, so arrival order is durable and never reused
// even across deletions (of which there are none: the table is append-only).
type SQLiteLog struct {
	db     *sql.DB
	mu     sync.Mutex // serializes appends
	logger *slog.Logger
}

// NewSQLiteLog opens (or creates) the audit log at the given path. Parent
// directories are created if needed.
func NewSQLiteLog(path string) (*SQLiteLog, error) {
	logger := slog.Default().With("component", "audit")

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	// WAL keeps reads from blocking the single writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	l := &SQLiteLog{db: db, logger: logger}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	logger.Info("audit log initialized", "path", path)
	return l, nil
}

func (l *SQLiteLog) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_log (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			audit_id TEXT NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			outcome TEXT NOT NULL,
			reason TEXT,
			params_json TEXT,
			ts TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log(ts);
		CREATE INDEX IF NOT EXISTS idx_audit_log_actor ON audit_log(actor);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Append adds a record under the single-writer lock. ID and Timestamp are
// generated if not set; Seq is assigned from the insert.
func (l *SQLiteLog) Append(ctx context.Context, r *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	var paramsJSON *string
	if r.Params != nil {
		data, err := json.Marshal(r.Params)
		if err != nil {
			return fmt.Errorf("%w: marshaling params: %v", ErrWrite, err)
		}
		s := string(data)
		paramsJSON = &s
	}

	query := `
		INSERT INTO audit_log (audit_id, actor, action, outcome, reason, params_json, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := l.db.ExecContext(ctx, query,
		r.ID,
		r.Actor,
		r.Action,
		string(r.Outcome),
		r.Reason,
		paramsJSON,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: reading seq: %v", ErrWrite, err)
	}
	r.Seq = seq

	l.logger.Debug("appended audit record",
		"seq", r.Seq,
		"actor", r.Actor,
		"action", r.Action,
		"outcome", r.Outcome,
	)
	return nil
}

// normalizeLimit applies the default (100) and cap (1000) to a listing limit.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

const listQuery = `
	SELECT seq, audit_id, actor, action, outcome, reason, params_json, ts
	FROM audit_log
	WHERE (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR ts <= ?)
	  AND (? IS NULL OR actor = ?)
	  AND (? IS NULL OR action = ?)
	  AND (? IS NULL OR outcome = ?)
	ORDER BY seq DESC
	LIMIT ?
`

// List returns records matching the filter, newest first.
func (l *SQLiteLog) List(ctx context.Context, f Filter) ([]Record, error) {
	limit := normalizeLimit(f.Limit)

	var sinceStr, untilStr, outcomeStr *string
	if f.Since != nil {
		s := f.Since.UTC().Format(time.RFC3339Nano)
		sinceStr = &s
	}
	if f.Until != nil {
		s := f.Until.UTC().Format(time.RFC3339Nano)
		untilStr = &s
	}
	if f.Outcome != nil {
		s := string(*f.Outcome)
		outcomeStr = &s
	}

	rows, err := l.db.QueryContext(ctx, listQuery,
		sinceStr, sinceStr,
		untilStr, untilStr,
		f.Actor, f.Actor,
		f.Action, f.Action,
		outcomeStr, outcomeStr,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit records: %w", err)
	}

	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var r Record
	var outcomeStr, tsStr string
	var reason, paramsJSON sql.NullString

	if err := rows.Scan(
		&r.Seq,
		&r.ID,
		&r.Actor,
		&r.Action,
		&outcomeStr,
		&reason,
		&paramsJSON,
		&tsStr,
	); err != nil {
		return r, fmt.Errorf("scanning audit record: %w", err)
	}

	r.Outcome = Outcome(outcomeStr)
	r.Reason = reason.String

	ts, err := time.Parse(time.RFC3339Nano, tsStr)
	if err != nil {
		return r, fmt.Errorf("parsing audit timestamp: %w", err)
	}
	r.Timestamp = ts

	if paramsJSON.Valid {
		if err := json.Unmarshal([]byte(paramsJSON.String), &r.Params); err != nil {
			return r, fmt.Errorf("unmarshaling audit params: %w", err)
		}
	}
	return r, nil
}

// Close closes the underlying database.
func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

// Ensure SQLiteLog implements Log.
var _ Log = (*SQLiteLog)(nil)
