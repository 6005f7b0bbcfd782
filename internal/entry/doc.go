// Package entry provides persistent device entry storage for the Shelly bridge.
//
// An entry is the durable record backing a running coordinator: connection
// parameters plus the device facts that must survive a bridge restart
// (sleep period, firmware version, pending reauthentication).
//
// The SQLite-backed store owns its schema and creates it on construction.
// Use the Store interface in consumers so tests can substitute fakes.
package entry
