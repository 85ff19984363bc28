// Package database provides the SQLite store backing update history.
//
// Open configures WAL mode and a busy timeout, restricts the file to 0600 and
// pins the pool to one connection. Migrate applies forward-only *.up.sql
// files from an fs.FS (see the migrations package for the embedded set).
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
