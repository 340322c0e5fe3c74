// Package database provides SQLite connectivity for the Lantaarn server.
//
// It wraps database/sql with WAL-mode configuration, a single-writer
// connection pool, startup health verification, and embedded schema
// migrations applied in version order.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "./data/lantaarn.db", WALMode: true, BusyTimeout: 5})
//	if err != nil { ... }
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil { ... }
package database
