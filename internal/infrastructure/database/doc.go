// Package database provides SQLite connection management for the Shelly bridge.
//
// This package wraps database/sql with the mattn/go-sqlite3 driver,
// configured for the bridge's single-writer access pattern.
//
// # Features
//
//   - WAL mode for concurrent reads during writes
//   - Busy timeout handling to avoid "database is locked" errors
//   - Restrictive file permissions (0600)
//   - Health checks for the bridge health report
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        "/var/lib/shelly-bridge/bridge.db",
//	    WALMode:     true,
//	    BusyTimeout: 5,
//	})
//	if err != nil {
//	    return fmt.Errorf("open database: %w", err)
//	}
//	defer db.Close()
//
// Schema creation is owned by the stores built on top of this package
// (see internal/entry), not by the connection layer.
package database
