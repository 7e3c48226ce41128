// Package history keeps a local SQLite ledger of task runs so CI containers
// stay debuggable after the fact and repeat runs can skip processed assets.
package history
