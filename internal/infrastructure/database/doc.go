// Package database provides SQLite connectivity for the Washdeck console.
//
// The console keeps a small local database holding the persisted operator
// session (bearer token and cached identity) so it survives process
// restarts. This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Connection lifecycle and health checks
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Session.DatabasePath})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
package database
