// Package database opens the bridge's SQLite store and runs its schema
// migrations.
//
// The store holds the energy accumulator's durable state: cumulative
// totals, per-device tracking markers, and the rolling window of hour
// buckets. Everything else the bridge serves lives in memory and is
// rebuilt from the vendor cloud on startup, so this is deliberately a
// thin layer: open with the right pragmas, migrate forward, hand out
// the embedded *sql.DB.
//
// # Migrations
//
// Migration files are embedded by the top-level migrations package and
// registered via RegisterMigrations; a blank import wires them up:
//
//	import _ "github.com/andrew-blake/melcloudhome-sub002/migrations"
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are forward-only and additive: columns are never dropped
// or renamed, so a database created by an older release upgrades in
// place and its data survives (see the energy package's handling of
// pre-bucket databases).
package database
