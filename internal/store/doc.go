// Package store provides the persistent method cache and per-session
// storage used by the Flickr gateway.
//
// # Backends
//
// Three adapters implement the Cache and SessionStore interfaces:
//
//   - memory: MemoryCache and MemorySessions, process-local
//   - sqlite: SQLiteStore via modernc.org/sqlite, one file shared by both views
//   - redis: RedisStore via go-redis, for several gateways sharing state
//
// Open picks the backends by adapter name and shares one connection when the
// cache and sessions use the same adapter.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//
// Expiry times are stored as Unix nanoseconds so comparisons stay exact.
//
// # Error Handling
//
// Read returns ErrNotFound for a missing or expired key or session record.
// Deleting something that does not exist is not an error.
package store
