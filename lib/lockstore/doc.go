// Package lockstore defines the persistence contract for advisory lock
// records.
//
// The store is a thin typed layer over a TTL-capable key-value database:
// it serializes records, derives keys from resource identity and maps the
// database's conditional write primitives onto the insert/update semantics
// the lock lifecycle needs. Lease bookkeeping lives entirely in the
// database's per-row TTL, so an expired lock simply stops existing as far
// as the store is concerned.
//
// Implementations live in subpackages, see lstore for the embedded one.
package lockstore
