// ABOUTME: Package documentation for turn persistence
// ABOUTME: Describes the Store interface and its implementations

// Package store persists generation turns. Every accepted turn is
// recorded when streaming begins and updated once with its terminal
// state: done with the accumulated response text, or errored with the
// failure detail.
//
// SQLiteStore is the production implementation (modernc.org/sqlite,
// WAL mode, schema created on open). MemoryStore mirrors the same
// semantics in memory for tests.
package store
