// Package store provides SQLite-backed durable cache storage.
//
// Store implements cache.Storage. Each named partition (staging, content,
// manifest-memory) is a row in partitions; its entries live in entries and
// are removed with it (ON DELETE CASCADE).
//
// # Integrity
//
// Every entry records an xxhash64 checksum of its body. An entry whose body
// no longer matches its checksum is reported as absent, so a damaged row is
// refetched instead of served.
//
// # Ordering
//
// Keys are returned ORDER BY seq ASC. Re-putting a URL moves it to the end,
// matching the insertion-order semantics of cache.Cache.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Required for partition cascade deletes
package store
