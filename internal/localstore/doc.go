// Package localstore is the device-side durable key-value store.
//
// # Overview
//
// leafrun keeps three independent records on disk: the cached route, the
// queue of pending actions and the last sync time. Store gives each of them
// whole-value JSON reads and writes under a namespaced key. There are no
// partial updates; every Save overwrites the previous value.
//
// # Failure Semantics
//
// Store does not surface storage failures to most callers:
//
//   - Save logs encode and write errors and returns. Callers carry on with
//     their in-memory state.
//   - Load returns false for a missing key and also for read or decode
//     errors, so a corrupt record behaves like a cache miss.
//   - LoadErr is for read-modify-write callers such as the pending queue,
//     which must not treat an unreadable record as empty and write over it.
//
// # Backends
//
// Backend is the byte-level contract. Three implementations ship:
//
//   - Badger: embedded LSM store, the default. Data lives in <data_dir>/badger
//     with synchronous writes and periodic value log GC.
//   - SQLite: one kv table in <data_dir>/leafrun.db, WAL mode, single
//     connection (pure Go driver, no cgo).
//   - Memory: a map, for tests and throwaway sessions.
//
// Open selects one by name from configuration.
package localstore
