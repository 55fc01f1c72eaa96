package lockstore

import (
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Record Type
// --------------------------------------------------------------------------

// LockRecord is the persisted state of a single advisory lock. One record
// exists per (ResourceID, ResourceType) pair while the lock is held.
type LockRecord struct {
	// LockID is the opaque token the holder must present to refresh the lock
	LockID string `json:"lockId"`
	// ResourceID identifies the locked resource
	ResourceID string `json:"resourceId"`
	// ResourceType is the kind of resource, e.g. "content"
	ResourceType string `json:"resourceType"`
	// ResourceInfo is an opaque caller-supplied description of the resource
	ResourceInfo string `json:"resourceInfo"`
	// CreatedBy is the user id of the lock holder
	CreatedBy string `json:"createdBy"`
	// CreatorInfo is an opaque caller-supplied description of the holder,
	// typically a JSON object with a "name" field for display purposes
	CreatorInfo string `json:"creatorInfo"`
	// DeviceID identifies the device the lock was taken from
	DeviceID string `json:"deviceId"`
	// CreatedOn is the time the lock was first acquired
	CreatedOn time.Time `json:"createdOn"`
	// ExpiresAt is the time the current lease runs out
	ExpiresAt time.Time `json:"expiresAt"`
}

// Key returns the storage key for the record, derived from the
// resource type and id. Records are keyed per resource, not per holder.
func (r *LockRecord) Key() string {
	return Key(r.ResourceID, r.ResourceType)
}

// Key derives the storage key for a (resource id, resource type) pair.
func Key(resourceID, resourceType string) string {
	return resourceType + "/" + resourceID
}

// --------------------------------------------------------------------------
// Filters
// --------------------------------------------------------------------------

// LockFilter decides whether a record is included in a List result.
type LockFilter func(*LockRecord) bool

// FilterAll matches every record.
func FilterAll(*LockRecord) bool { return true }

// FilterByResourceIDs matches records whose ResourceID is in the given set.
func FilterByResourceIDs(ids ...string) LockFilter {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(r *LockRecord) bool {
		_, ok := set[r.ResourceID]
		return ok
	}
}

// --------------------------------------------------------------------------
// Error Type
// --------------------------------------------------------------------------

// RetCode is the return code of a store operation
type RetCode int

const (
	RetCSuccess RetCode = iota
	// RetCInternalError signals a serialization or engine failure
	RetCInternalError
	// RetCUnsupportedOperation signals that the backing database lacks a
	// feature the store needs
	RetCUnsupportedOperation
	// RetCAlreadyExists signals that an insert found a live record
	RetCAlreadyExists
	// RetCNotFound signals that an update found no live record
	RetCNotFound
)

// Error is the error type returned by lock stores. The code lets callers
// distinguish contention from genuine failures without string matching.
type Error struct {
	Code RetCode
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("lockstore error (code %d): %s", e.Code, e.Msg)
}

// CodeOf extracts the RetCode from an error, or RetCInternalError if the
// error is not a store error.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return RetCInternalError
}

// --------------------------------------------------------------------------
// Store Interface
// --------------------------------------------------------------------------

// ILockStore persists lock records with a per-record lease. Rows whose
// lease has run out behave as absent on every operation.
//
// Thread-safety: implementations must be safe for concurrent use. The only
// operation with atomicity requirements beyond single-row consistency is
// InsertIfAbsent, which must atomically check-and-insert so that at most
// one of several racing inserts for the same key succeeds.
type ILockStore interface {
	// FindOne returns the live record for the resource, if any.
	// The second return value reports whether a record was found.
	FindOne(resourceID, resourceType string) (*LockRecord, bool, error)

	// InsertIfAbsent stores the record with the given lease iff no live
	// record exists for its key. Returns RetCAlreadyExists if one does.
	InsertIfAbsent(record *LockRecord, ttl time.Duration) error

	// Update overwrites the live record for the record's key and restarts
	// its lease. Returns RetCNotFound if no live record exists.
	Update(record *LockRecord, ttl time.Duration) error

	// Delete removes the record for the resource.
	// The bool reports whether a live record existed.
	Delete(resourceID, resourceType string) (bool, error)

	// List returns all live records matching the filter, in no
	// particular order.
	List(filter LockFilter) ([]*LockRecord, error)

	// Close releases the store and its backing database.
	Close() error
}
