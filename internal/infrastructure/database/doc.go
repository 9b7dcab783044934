// Package database opens the SQLite file that backs the lid history log.
//
// The device keeps a small on-disk journal of every lid transition so the
// local API can show what happened while nobody was connected over BLE.
// SQLite is opened in WAL mode with a single writer connection, and schema
// changes are applied from embedded .up.sql/.down.sql pairs.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
