// Package database opens the FeedSync SQLite store and applies schema
// migrations.
//
// The store is small: it holds the saved mapping profile (per-actuator
// signal index and oscillation amount) so assignments survive restarts.
// Connections use WAL mode and a busy timeout; the pool is limited to a
// single connection because SQLite allows one writer.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. Each migration runs in its own transaction.
package database
