// Package database provides SQLite connectivity for ShellyManager.
//
// This package manages:
//   - The connection, opened with WAL mode, a busy timeout and foreign keys
//   - Schema migrations embedded into the binary
//   - Lifecycle and health checks
//
// The meter and readings tables themselves live in the migrations directory;
// queries against them live in the meter package.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
