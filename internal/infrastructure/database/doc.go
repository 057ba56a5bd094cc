// Package database opens the SQLite file Hearth persists to and runs
// the embedded schema migrations.
//
// The engine stores little: scheduled values so restarts do not
// re-actuate unchanged rooms, and the audit trail. A single SQLite
// file in WAL mode handles that comfortably, and keeps backup as
// simple as copying one file while the busy timeout covers the
// occasional concurrent reader.
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil { ... }
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil { ... }
//
// Migrations live in the top-level migrations package as
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql pairs and are applied
// oldest-first inside individual transactions. New migrations should
// be additive; the .down.sql files exist for development, not for
// production rollbacks.
package database
