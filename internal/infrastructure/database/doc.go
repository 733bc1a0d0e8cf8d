// Package database provides SQLite connectivity for Tracker Core.
//
// This package manages:
//   - The connection (WAL mode, busy timeout, foreign keys, single writer)
//   - Embedded, versioned schema migrations
//   - Transactions via InTx and the Querier abstraction shared by repositories
//   - Classification of driver errors (unique violations, lock contention)
//
// Every check-then-act sequence in the domain packages (quota-gated
// assignment, geofence linking, latest-firmware recompute) runs inside InTx.
// Combined with the single connection this gives serialisable behaviour.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
