// Package audit records who or what changed room values and when, and
// serves the trail back out of the audit_logs table.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditLog is one entry in the audit trail.
type AuditLog struct { //nolint:revive // audit.AuditLog reads better than audit.Log at call sites
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Room      string         `json:"room,omitempty"`
	Source    string         `json:"source"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter narrows a List call. Zero-valued fields match everything.
type Filter struct {
	Action string // room.override_set, room.schedule_applied, room.rescheduled, ...
	Room   string
	Source string // api, mqtt or engine
	Limit  int    // page size, defaults to 50, capped at 200
	Offset int
}

// ListResult is one page of the audit trail.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository keeps the audit trail in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new audit log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts one entry, generating ID and CreatedAt when the caller
// left them zero.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()[:8]
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	details, err := encodeDetails(log.Details)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, room, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		log.ID, log.Action, textOrNull(log.Room), log.Source, details,
		log.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// List returns entries matching the filter, newest first. Entries with
// the same timestamp are ordered by ID so pagination stays stable.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	f := filter.clamped()
	where, args := f.predicate()

	var total int
	countSQL := "SELECT COUNT(*) FROM audit_logs" + where //nolint:gosec // predicate holds placeholders only, values travel in args
	if err := r.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	pageSQL := "SELECT id, action, room, source, details, created_at FROM audit_logs" + //nolint:gosec // predicate holds placeholders only, values travel in args
		where + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, pageSQL, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]AuditLog, 0, f.Limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &ListResult{Logs: logs, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// clamped returns a copy of the filter with Limit and Offset forced
// into range.
func (f Filter) clamped() Filter {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultPageSize
	case f.Limit > maxPageSize:
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// predicate renders the set filter fields as a WHERE clause plus its
// placeholder arguments. The SQL is empty or starts with a space.
func (f Filter) predicate() (string, []any) {
	var clauses []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{"action", f.Action},
		{"room", f.Room},
		{"source", f.Source},
	} {
		if c.value != "" {
			clauses = append(clauses, c.column+" = ?")
			args = append(args, c.value)
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanEntry(rows *sql.Rows) (AuditLog, error) {
	var (
		entry     AuditLog
		room      sql.NullString
		details   sql.NullString
		createdAt string
	)
	if err := rows.Scan(&entry.ID, &entry.Action, &room, &entry.Source, &details, &createdAt); err != nil {
		return AuditLog{}, fmt.Errorf("scanning audit log: %w", err)
	}
	entry.Room = room.String

	if details.String != "" {
		// Details were written by Create, so a decode failure means a
		// hand-edited row. Serve the entry without them.
		var m map[string]any
		if json.Unmarshal([]byte(details.String), &m) == nil {
			entry.Details = m
		}
	}

	when, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return AuditLog{}, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
	}
	entry.CreatedAt = when
	return entry, nil
}

// encodeDetails renders the details map as JSON, or NULL when absent.
func encodeDetails(details map[string]any) (any, error) {
	if details == nil {
		return nil, nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshalling audit details: %w", err)
	}
	return string(b), nil
}

// textOrNull maps the empty string to NULL for nullable TEXT columns.
func textOrNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
