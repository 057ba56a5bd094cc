package room

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StateRecord is a room's persisted scheduling state. The value is
// stored in its serialized JSON form so a restart can pick up where
// the last run left off without re-sending unchanged values.
type StateRecord struct {
	Room           string
	ScheduledValue string
	UpdatedAt      time.Time
}

// Repository defines the persistence interface for room state.
type Repository interface {
	// SaveState upserts a room's scheduling state.
	SaveState(ctx context.Context, rec StateRecord) error

	// LoadStates retrieves the persisted state of every room, keyed by
	// room name.
	LoadStates(ctx context.Context) (map[string]StateRecord, error)

	// DeleteState removes a room's persisted state. Unknown rooms are
	// not an error.
	DeleteState(ctx context.Context, room string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the
// room_states migration applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveState upserts a room's scheduling state.
func (r *SQLiteRepository) SaveState(ctx context.Context, rec StateRecord) error {
	query := `
		INSERT INTO room_states (room, scheduled_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(room) DO UPDATE SET
			scheduled_value = excluded.scheduled_value,
			updated_at = excluded.updated_at`

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx, query,
		rec.Room, rec.ScheduledValue, updatedAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("saving room state: %w", err)
	}
	return nil
}

// LoadStates retrieves the persisted state of every room.
func (r *SQLiteRepository) LoadStates(ctx context.Context) (map[string]StateRecord, error) {
	query := `SELECT room, scheduled_value, updated_at FROM room_states`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying room states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]StateRecord)
	for rows.Next() {
		var (
			rec       StateRecord
			updatedAt string
		)
		if err := rows.Scan(&rec.Room, &rec.ScheduledValue, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning room state: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			rec.UpdatedAt = t
		}
		states[rec.Room] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating room states: %w", err)
	}
	return states, nil
}

// DeleteState removes a room's persisted state.
func (r *SQLiteRepository) DeleteState(ctx context.Context, room string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM room_states WHERE room = ?`, room); err != nil {
		return fmt.Errorf("deleting room state: %w", err)
	}
	return nil
}

// loadState is a single-room convenience used in tests.
func (r *SQLiteRepository) loadState(ctx context.Context, room string) (StateRecord, bool, error) {
	var (
		rec       StateRecord
		updatedAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT room, scheduled_value, updated_at FROM room_states WHERE room = ?`, room).
		Scan(&rec.Room, &rec.ScheduledValue, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return StateRecord{}, false, nil
	}
	if err != nil {
		return StateRecord{}, false, fmt.Errorf("querying room state: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return rec, true, nil
}
