// Package database provides SQLite-based storage for burrow.
//
// A single database file holds two tables:
//   - cache_entries backs the persistent cache. DB implements cache.Store,
//     so the cache Manager applies its TTL and revalidation rules on top
//     of it unchanged.
//   - traversal_reports keeps every traversal report that was saved, for
//     the history command and for comparing runs against one location.
//
// The driver is modernc.org/sqlite, a CGO-free implementation, so the
// binary cross-compiles without a C toolchain. WAL mode is enabled by
// default so readers are not blocked while a traversal writes.
package database
