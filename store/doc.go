// Package store persists the Session Record of a namespace and tells every
// other handle on that namespace when it changes.
//
// # Handles
//
// A [Backend] hands out one [Store] per tab. Writes and clears made through
// a handle are broadcast to every other handle of the same namespace and are
// never echoed back to the writer. The broadcast carries only the writer's
// origin; receivers re-read the store to learn the new state.
//
// # Backends
//
//   - [RedisBackend]: one key per namespace plus a pub/sub channel. Key TTL
//     is the remaining lifetime plus a retention grace.
//   - [MemoryBackend]: process-local, synchronous fan-out. Used by tests and
//     single-process deployments.
//
// # What this package must NOT do
//
//   - Decide whether a session has expired. Expiry belongs to the watchdog.
//   - Surface read errors. A record that cannot be read is absent.
package store
