package db

import (
	"io"
	"time"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplRowan Implementation = "rowan"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureSet            Feature = 1 << iota // Support for unconditional Set operations
	FeatureSetIfUnset                         // Support for insert-if-absent operations
	FeatureSetIfExists                        // Support for update-if-present operations
	FeatureGet                                // Support for Get operations
	FeatureDelete                             // Support for Delete operations
	FeatureRange                              // Support for Range operations
	FeatureSave                               // Support for Save operations
	FeatureLoad                               // Support for Load operations
	FeatureGarbageCollect                     // Support for automatic TTL garbage collection
)

func (f Feature) String() string {
	switch f {
	case FeatureSet:
		return "Set"
	case FeatureSetIfUnset:
		return "SetIfUnset"
	case FeatureSetIfExists:
		return "SetIfExists"
	case FeatureGet:
		return "Get"
	case FeatureDelete:
		return "Delete"
	case FeatureRange:
		return "Range"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	case FeatureGarbageCollect:
		return "GarbageCollect"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	Entries           int            `json:"entries"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for key-value database implementations with
// row-level TTL support. All single-row operations must be atomic at the
// row level; there are no cross-row transactions.
//
// A ttl of zero means the row never expires. An expired row behaves exactly
// like an absent row for Get, SetIfUnset, SetIfExists, Delete and Range;
// physical removal is left to the implementation (e.g. a background
// garbage collector).
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or replaces the row for key, resetting its TTL.
	Set(key string, value []byte, ttl time.Duration)

	// SetIfUnset inserts the row only if no live row exists for key.
	// It reports whether the insert took place.
	SetIfUnset(key string, value []byte, ttl time.Duration) (inserted bool)

	// SetIfExists replaces the row only if a live row exists for key,
	// resetting its TTL. It reports whether the update took place.
	SetIfExists(key string, value []byte, ttl time.Duration) (updated bool)

	// Delete removes the row for key. It reports whether a live row existed.
	Delete(key string) (existed bool)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a live row was found.
	Get(key string) (value []byte, loaded bool)

	// Range calls fn for every live row until fn returns false.
	// The iteration order is unspecified.
	Range(fn func(key string, value []byte) bool)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists all live rows to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database from data provided by an io.Reader,
	// replacing the current contents.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close stops background routines and releases resources.
	Close() (err error)
}
