// Package rowan implements the default in-memory KVDB engine.
//
// Architecture:
//
//   - Keys are hashed (seeded FNV-1a) and distributed over a fixed set of
//     shards, one per CPU by default. Each shard stores its rows in an
//     xsync.MapOf, whose Compute operation provides the atomic per-row
//     read-modify-write that SetIfUnset and SetIfExists are built on.
//
//   - TTLs are absolute wall-clock deadlines. Liveness is enforced on every
//     read: an expired row is reported as absent by Get, Range and the
//     conditional writes, regardless of whether the garbage collector has
//     run yet. The GC only reclaims memory.
//
//   - Each shard keeps a deadline queue (binary min-heap with key-based
//     removal). A single background goroutine periodically pops due
//     deadlines and removes the rows, double-checking liveness under the
//     row's Compute in case the row was rewritten after its old deadline
//     was scheduled.
//
//   - Save/Load write a compact binary snapshot (magic number, format
//     version, length-prefixed entries) of all live rows. Deadlines are
//     persisted as absolute timestamps, so leases keep running while the
//     snapshot sits on disk.
//
// The engine supports all KVDB features, including FeatureGarbageCollect.
package rowan
