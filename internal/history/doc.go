// Package history persists lid transitions to SQLite.
//
// Every angle or power change the controller makes, whether a remote
// command or the proximity monitor caused it, is appended to the
// state_history table. The local API reads it back newest first, and a
// retention job prunes rows older than the configured number of days.
package history
