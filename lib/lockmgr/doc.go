// Package lockmgr implements the advisory lock lifecycle: acquire,
// refresh, release and list.
//
// Locks are advisory. Holding one does not technically prevent anyone
// from editing the resource; the owning system and its clients honor the
// lock by convention. Every lock carries a lease, so an editor that
// disappears without releasing stops blocking others once the lease runs
// out. The manager never extends a lease on its own, only an explicit
// refresh by the holder does.
//
// The manager coordinates three parties on every mutating operation: the
// lock store (the single source of truth for who holds a lock), a
// resource validator (the owning system's verdict on whether the resource
// may be locked at all) and a version notifier (tells the owning system
// the new lock key so its version checks fence off concurrent editors).
// The notifier is strictly best-effort; a lock that is stored is granted
// even when the notification fails.
//
// Correctness under concurrency rests on a single primitive: the store's
// atomic insert-if-absent. Everything else is read-decide-write with a
// bounded retry, which is safe because a lost race always resolves to one
// of the conflict answers of the decision table.
package lockmgr
