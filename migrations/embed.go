// Package migrations compiles the SQL migration files into the binary,
// so a deployed hearth executable can create and upgrade its schema
// with nothing else on disk.
package migrations

import (
	"embed"

	"github.com/hearth-home/hearth-core/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	// The embedded FS is rooted at this directory.
	database.MigrationsDir = "."
}
