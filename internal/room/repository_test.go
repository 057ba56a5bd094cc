package room

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the
// room_states schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Matches the migration.
	schema := `
		CREATE TABLE room_states (
			room TEXT PRIMARY KEY,
			scheduled_value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return db
}

func TestSQLiteRepository_SaveAndLoad(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	saved := time.Date(2026, time.March, 2, 7, 30, 0, 0, time.UTC)
	if err := repo.SaveState(ctx, StateRecord{Room: "living", ScheduledValue: "21.5", UpdatedAt: saved}); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := repo.SaveState(ctx, StateRecord{Room: "bedroom", ScheduledValue: `"OFF"`}); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	states, err := repo.LoadStates(ctx)
	if err != nil {
		t.Fatalf("LoadStates: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("expected 2 records, got %d", len(states))
	}
	living := states["living"]
	if living.ScheduledValue != "21.5" {
		t.Errorf("living value = %q, want %q", living.ScheduledValue, "21.5")
	}
	if !living.UpdatedAt.Equal(saved) {
		t.Errorf("living updated at = %v, want %v", living.UpdatedAt, saved)
	}
	if states["bedroom"].ScheduledValue != `"OFF"` {
		t.Errorf("bedroom value = %q, want %q", states["bedroom"].ScheduledValue, `"OFF"`)
	}
	// A zero UpdatedAt is filled in on save.
	if states["bedroom"].UpdatedAt.IsZero() {
		t.Error("bedroom updated at not defaulted")
	}
}

func TestSQLiteRepository_Upsert(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.SaveState(ctx, StateRecord{Room: "living", ScheduledValue: "21.5"}); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := repo.SaveState(ctx, StateRecord{Room: "living", ScheduledValue: "16.5"}); err != nil {
		t.Fatalf("SaveState update: %v", err)
	}

	rec, found, err := repo.loadState(ctx, "living")
	if err != nil {
		t.Fatalf("loadState: %v", err)
	}
	if !found {
		t.Fatal("record not found")
	}
	if rec.ScheduledValue != "16.5" {
		t.Errorf("value = %q, want %q after upsert", rec.ScheduledValue, "16.5")
	}
}

func TestSQLiteRepository_DeleteState(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.SaveState(ctx, StateRecord{Room: "living", ScheduledValue: "21.5"}); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := repo.DeleteState(ctx, "living"); err != nil {
		t.Fatalf("DeleteState: %v", err)
	}

	_, found, err := repo.loadState(ctx, "living")
	if err != nil {
		t.Fatalf("loadState: %v", err)
	}
	if found {
		t.Error("record still present after delete")
	}

	// Deleting an unknown room is not an error.
	if err := repo.DeleteState(ctx, "attic"); err != nil {
		t.Errorf("DeleteState(attic): %v", err)
	}
}
