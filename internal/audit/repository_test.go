package audit

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the audit_logs
// schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Matches the migration.
	schema := `
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			room TEXT,
			source TEXT NOT NULL,
			details TEXT,
			created_at TEXT NOT NULL
		) STRICT;`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return db
}

func seedLogs(t *testing.T, repo *SQLiteRepository) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, time.March, 2, 7, 0, 0, 0, time.UTC)

	entries := []AuditLog{
		{Action: "room.schedule_applied", Room: "living", Source: "engine",
			Details: map[string]any{"value": "21.5"}, CreatedAt: base},
		{Action: "room.override_set", Room: "living", Source: "api",
			Details: map[string]any{"value": "18"}, CreatedAt: base.Add(time.Minute)},
		{Action: "room.override_set", Room: "bedroom", Source: "mqtt",
			CreatedAt: base.Add(2 * time.Minute)},
		{Action: "room.rescheduled", Room: "living", Source: "api",
			CreatedAt: base.Add(3 * time.Minute)},
	}
	for i := range entries {
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("seeding entry %d: %v", i, err)
		}
	}
}

func TestSQLiteRepository_Create(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	entry := &AuditLog{Action: "room.override_set", Room: "living", Source: "api"}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(entry.ID, "aud-") {
		t.Errorf("ID = %q, want aud- prefix", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt not defaulted")
	}
}

func TestSQLiteRepository_List(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	seedLogs(t, repo)
	ctx := context.Background()

	t.Run("all entries newest first", func(t *testing.T) {
		res, err := repo.List(ctx, Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if res.Total != 4 || len(res.Logs) != 4 {
			t.Fatalf("total = %d, logs = %d, want 4/4", res.Total, len(res.Logs))
		}
		if res.Logs[0].Action != "room.rescheduled" {
			t.Errorf("first action = %q, want room.rescheduled", res.Logs[0].Action)
		}
		if res.Limit != 50 {
			t.Errorf("limit = %d, want default 50", res.Limit)
		}
	})

	t.Run("filter by room", func(t *testing.T) {
		res, err := repo.List(ctx, Filter{Room: "bedroom"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if res.Total != 1 || res.Logs[0].Source != "mqtt" {
			t.Fatalf("result = %+v, want one mqtt entry", res)
		}
	})

	t.Run("filter by action and source", func(t *testing.T) {
		res, err := repo.List(ctx, Filter{Action: "room.override_set", Source: "api"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if res.Total != 1 || res.Logs[0].Room != "living" {
			t.Fatalf("result = %+v, want one living entry", res)
		}
		if res.Logs[0].Details["value"] != "18" {
			t.Errorf("details = %v, want value 18", res.Logs[0].Details)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		res, err := repo.List(ctx, Filter{Limit: 2, Offset: 2})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if res.Total != 4 || len(res.Logs) != 2 {
			t.Fatalf("total = %d, logs = %d, want 4/2", res.Total, len(res.Logs))
		}
	})

	t.Run("no matches returns empty slice", func(t *testing.T) {
		res, err := repo.List(ctx, Filter{Room: "attic"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if res.Logs == nil || len(res.Logs) != 0 {
			t.Fatalf("logs = %#v, want empty non-nil slice", res.Logs)
		}
	})
}

func TestRecorder_Record(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	rec := NewRecorder(repo, SourceEngine)

	rec.Record(context.Background(), "room.schedule_applied", "living",
		map[string]any{"value": "21.5"})

	res, err := repo.List(context.Background(), Filter{Source: SourceEngine})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Total != 1 || res.Logs[0].Action != "room.schedule_applied" {
		t.Fatalf("result = %+v, want the recorded entry", res)
	}
}

func TestRecorder_Record_ContextSource(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	rec := NewRecorder(repo, SourceEngine)

	ctx := WithSource(context.Background(), SourceAPI)
	rec.Record(ctx, "room.value_overridden", "living", nil)

	res, err := repo.List(context.Background(), Filter{Source: SourceAPI})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Total != 1 {
		t.Fatalf("Total = %d, want 1 entry attributed to the api", res.Total)
	}
	if res.Logs[0].Source != SourceAPI {
		t.Errorf("Source = %q, want %q", res.Logs[0].Source, SourceAPI)
	}
}

func TestSourceFromContext(t *testing.T) {
	if _, ok := SourceFromContext(context.Background()); ok {
		t.Error("Expected no source on a bare context")
	}

	ctx := WithSource(context.Background(), SourceMQTT)
	source, ok := SourceFromContext(ctx)
	if !ok || source != SourceMQTT {
		t.Errorf("SourceFromContext() = %q, %v", source, ok)
	}
}
