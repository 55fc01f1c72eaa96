// Package db defines the low-level key-value database abstraction the lock
// store is built on.
//
// The KVDB interface models exactly what a lease-based lock store needs
// from its storage engine:
//
//   - Atomic single-row operations: Get, Set, SetIfUnset (insert-if-absent),
//     SetIfExists (conditional replace) and Delete. SetIfUnset is the
//     operation that makes lock acquisition race-free: of two concurrent
//     inserts for the same key, exactly one succeeds.
//
//   - Row-level TTL: every write carries an optional time-to-live. Once the
//     TTL elapses the row is indistinguishable from an absent row, which is
//     how lease expiry works without an explicit delete.
//
//   - Range iteration over live rows, used for listing.
//
//   - Save/Load snapshots so embedders can persist state across restarts.
//
// Implementations declare their capabilities through SupportsFeature, which
// lets higher layers reject a backend that cannot serve them instead of
// failing at runtime.
//
// The packages under engines/ provide implementations; rowan is the default
// sharded in-memory engine with background TTL garbage collection.
package db
