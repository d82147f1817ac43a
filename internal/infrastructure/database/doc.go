// Package database owns the SQLite connection and schema migrations.
//
// A single *DB is shared by the user, session, room, message and audit
// repositories. Migrations are plain SQL pairs embedded by the top-level
// migrations package:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := database.NewMigrator(db, migrations.FS, ".").Up(ctx); err != nil {
//	    return err
//	}
//
// Foreign keys are enforced on every connection, so deleting a user or a
// room cascades to its sessions, allow-list rows and messages.
package database
