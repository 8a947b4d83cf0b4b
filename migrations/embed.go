// Package migrations compiles the schema migration files into the
// binary. A blank import of this package from main (or a test) is all
// that is needed before calling db.Migrate.
package migrations

import (
	"embed"

	"github.com/andrew-blake/melcloudhome-sub002/internal/infrastructure/database"
)

//go:embed *.up.sql
var files embed.FS

func init() {
	database.RegisterMigrations(files)
}
