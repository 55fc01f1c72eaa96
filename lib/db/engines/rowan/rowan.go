package rowan

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/project-sunbird/sunbird-lock-service/lib/db"
	"github.com/project-sunbird/sunbird-lock-service/lib/db/engines/rowan/internal"
	"github.com/project-sunbird/sunbird-lock-service/lib/db/util"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum          = "ROWANDB\x00"          // File format identifier
	rowanVersion      = 1                      // Snapshot format version
	defaultGCInterval = 100 * time.Millisecond // Default interval between GC runs
)

// --------------------------------------------------------------------------
// Core Rowan database structure
// --------------------------------------------------------------------------

// rowanImpl implements a sharded in-memory database with wall-clock TTL
type rowanImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for hash function
	shards    []*internal.Shard // Array of shards

	// garbage collection
	gcInterval  time.Duration
	gcIsRunning atomic.Bool
	gcStop      chan struct{}
}

// DBOptions configures the rowanImpl behavior during initialization
type DBOptions struct {
	NumShards  int           // Number of shards (0 = one per CPU)
	GCInterval time.Duration // Time between GC runs (0 = use default)
}

// DefaultOptions returns the default rowanImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards:  runtime.NumCPU(),
		GCInterval: defaultGCInterval,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewRowanDB creates a new RowanDB instance with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewRowanDB(opts *DBOptions) db.KVDB {

	// Generate default options if not provided
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = defaultGCInterval
	}

	// Generate a seed for this rowanImpl instance
	seed := util.GenerateSeed()
	hasher := createIdentityHasher()

	// Create shards
	shards := make([]*internal.Shard, opts.NumShards)
	for i := 0; i < opts.NumShards; i++ {
		shards[i] = internal.NewShard(hasher)
	}

	newDB := &rowanImpl{
		numShards:  opts.NumShards,
		seed:       seed,
		shards:     shards,
		gcInterval: opts.GCInterval,
	}

	newDB.startGC()

	return newDB
}

// --------------------------------------------------------------------------
// Hash Helper Functions
// --------------------------------------------------------------------------

// stringToUint64 converts a string to a util.UintKey with hashing
// and applies the rowanImpl seed to ensure uniqueness between instances
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rn *rowanImpl) stringToUint64(s string) util.UintKey {
	return util.HashString(s, rn.seed)
}

// createIdentityHasher creates a hash function that combines a key with a seed
func createIdentityHasher() func(util.UintKey, uint64) uint64 {
	return func(key util.UintKey, mapSeed uint64) uint64 {
		return uint64(key) ^ mapSeed
	}
}

// deadline converts a relative ttl into an absolute unix-nano deadline.
// A zero ttl means the row never expires.
func deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return time.Now().Add(ttl).UnixNano()
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or replaces the row for key, resetting its TTL.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rn *rowanImpl) Set(key string, value []byte, ttl time.Duration) {
	rn.compute(key, value, ttl, func(new, _ internal.Entry, _ bool) (internal.Entry, bool) {
		return new, false
	})
}

// SetIfUnset inserts the row only if no live row exists for key.
// An expired row counts as absent. It reports whether the insert took place.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
// Of two concurrent SetIfUnset calls for the same key, exactly one inserts.
func (rn *rowanImpl) SetIfUnset(key string, value []byte, ttl time.Duration) bool {
	var inserted bool
	rn.compute(key, value, ttl, func(new, old internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded {
			return old, false
		}
		inserted = true
		return new, false
	})
	return inserted
}

// SetIfExists replaces the row only if a live row exists for key,
// resetting its TTL. It reports whether the update took place.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rn *rowanImpl) SetIfExists(key string, value []byte, ttl time.Duration) bool {
	var updated bool
	rn.compute(key, value, ttl, func(new, old internal.Entry, loaded bool) (internal.Entry, bool) {
		if !loaded {
			// delete=true so a missing row is not materialized as a zero
			// entry; an expired leftover is purged early
			return old, true
		}
		updated = true
		return new, false
	})
	return updated
}

// compute is the shared implementation behind all mutating operations.
// It handles hashing, value copying, the liveness check on the old entry
// and deadline (re-)scheduling for the GC.
//
// The fn callback sees a consistent view: loaded is false if the old entry
// is absent or expired. It returns the entry to store and whether the row
// should be removed instead.
//
// Thread-safety: The per-row mutation is atomic via the shard map's Compute.
func (rn *rowanImpl) compute(key string, value []byte, ttl time.Duration, fn func(new, old internal.Entry, loaded bool) (entry internal.Entry, delete bool)) {

	intKey := rn.stringToUint64(key)
	shard := internal.GetShard(intKey, rn.shards)

	// Copy value to prevent memory corruption
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	var (
		now      = time.Now().UnixNano()
		expireAt = deadline(ttl)
		stored   internal.Entry
		removed  bool
	)

	shard.Data.Compute(intKey, func(oldEntry internal.Entry, oldEntryExists bool) (internal.Entry, bool) {
		loaded := oldEntryExists && !oldEntry.Expired(now)

		entry, del := fn(internal.Entry{
			Key:       key,
			Value:     valueCopy,
			ExpiresAt: expireAt,
		}, oldEntry, loaded)

		if del {
			removed = true
			// delete=true on a missing key prevents the zero value from
			// being created
			return oldEntry, true
		}

		stored = entry
		return entry, false
	})

	// keep the GC's deadline queue in sync with what was stored
	switch {
	case removed:
		shard.Unschedule(intKey)
	case stored.ExpiresAt != 0:
		shard.Schedule(intKey, stored.ExpiresAt)
	default:
		shard.Unschedule(intKey)
	}
}

// Delete removes the row for key. It reports whether a live row existed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rn *rowanImpl) Delete(key string) bool {
	var existed bool
	rn.compute(key, nil, 0, func(_, old internal.Entry, loaded bool) (internal.Entry, bool) {
		existed = loaded
		// remove the row either way; an expired leftover is purged early
		return old, true
	})
	return existed
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a value for a key.
// The boolean indicates whether a live (not expired) row was found.
// The returned value is a copy of the stored data and therefore safe to modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rn *rowanImpl) Get(key string) ([]byte, bool) {
	intKey := rn.stringToUint64(key)
	shard := internal.GetShard(intKey, rn.shards)

	entry, ok := shard.Data.Load(intKey)
	if !ok || entry.Expired(time.Now().UnixNano()) {
		return nil, false
	}

	data := make([]byte, len(entry.Value))
	copy(data, entry.Value)
	return data, true
}

// Range calls fn for every live row until fn returns false.
//
// Thread-safety: This method is thread-safe; rows written concurrently may
// or may not be observed.
func (rn *rowanImpl) Range(fn func(key string, value []byte) bool) {
	now := time.Now().UnixNano()

	for _, shard := range rn.shards {
		done := false
		shard.Data.Range(func(_ util.UintKey, entry internal.Entry) bool {
			if entry.Expired(now) {
				return true
			}

			value := make([]byte, len(entry.Value))
			copy(value, entry.Value)

			if !fn(entry.Key, value) {
				done = true
				return false
			}
			return true
		})
		if done {
			return
		}
	}
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// startGC starts the garbage collector
// if the GC is already running, this function does nothing
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rn *rowanImpl) startGC() {
	if rn.gcIsRunning.CompareAndSwap(false, true) {
		rn.gcStop = make(chan struct{})
		go rn.garbageCollector(rn.gcStop)
	}
}

// stopGC stops the garbage collector.
// if the GC is not running, this function does nothing.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (rn *rowanImpl) stopGC() {
	if rn.gcIsRunning.CompareAndSwap(true, false) {
		close(rn.gcStop)
	}
}

// garbageCollector periodically collects rows whose deadline has passed.
// Expiry is already enforced logically on every read; the collector only
// reclaims the memory.
func (rn *rowanImpl) garbageCollector(stop <-chan struct{}) {
	ticker := time.NewTicker(rn.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		now := time.Now().UnixNano()
		for _, shard := range rn.shards {
			for _, key := range shard.PopDue(now) {
				var reschedule int64

				shard.Data.Compute(key, func(e internal.Entry, loaded bool) (internal.Entry, bool) {
					if !loaded {
						return e, true
					}

					// the row may have been rewritten with a later deadline
					// after its old deadline was popped
					if !e.Expired(now) {
						reschedule = e.ExpiresAt
						return e, false
					}

					return internal.Entry{}, true
				})

				if reschedule != 0 {
					shard.Schedule(key, reschedule)
				}
			}
		}
	}
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists all live rows to the writer.
// Deadlines are stored as absolute timestamps, so rows whose lease ran out
// while the snapshot was on disk are expired on load.
//
// Thread-safety: This function allows concurrent reads and writes; it takes
// a point-in-time-ish snapshot without blocking modifications.
func (rn *rowanImpl) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	// Collect snapshots of all live entries
	var entries []internal.Entry
	now := time.Now().UnixNano()

	for _, shard := range rn.shards {
		shard.Data.Range(func(_ util.UintKey, entry internal.Entry) bool {
			if entry.Expired(now) {
				return true
			}

			entryCopy := internal.Entry{
				Key:       entry.Key,
				ExpiresAt: entry.ExpiresAt,
				Value:     make([]byte, len(entry.Value)),
			}
			copy(entryCopy.Value, entry.Value)

			entries = append(entries, entryCopy)
			return true
		})
	}

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}

	// Write snapshot format version
	if err := binary.Write(bw, binary.LittleEndian, uint8(rowanVersion)); err != nil {
		return err
	}

	// Write total entry count
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	// Write entries
	for _, entry := range entries {

		// Write key (length-prefixed)
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(entry.Key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(entry.Key); err != nil {
			return err
		}

		// Write expiry deadline
		if err := binary.Write(bw, binary.LittleEndian, entry.ExpiresAt); err != nil {
			return err
		}

		// Write value (length-prefixed)
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(entry.Value))); err != nil {
			return err
		}
		if _, err := bw.Write(entry.Value); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load restores a database from the reader, replacing the current contents.
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (rn *rowanImpl) Load(r io.Reader) error {

	// stop gc during load; restarted once the shards are rebuilt
	rn.stopGC()
	defer rn.startGC()

	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != rowanVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, rowanVersion)
	}

	// Recreate empty shards
	hasher := createIdentityHasher()
	shards := make([]*internal.Shard, rn.numShards)
	for i := 0; i < rn.numShards; i++ {
		shards[i] = internal.NewShard(hasher)
	}
	rn.shards = shards

	// Read entry count
	var entryCount uint64
	if err := binary.Read(br, binary.LittleEndian, &entryCount); err != nil {
		return err
	}

	// Read entries
	for i := uint64(0); i < entryCount; i++ {

		// Read key
		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		keyBytes := make([]byte, keyLen)
		if _, err := io.ReadFull(br, keyBytes); err != nil {
			return err
		}
		key := string(keyBytes)

		// Read expiry deadline
		var expiresAt int64
		if err := binary.Read(br, binary.LittleEndian, &expiresAt); err != nil {
			return err
		}

		// Read value
		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}
		value := make([]byte, valueLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return err
		}

		// Store entry in the appropriate shard
		intKey := rn.stringToUint64(key)
		shard := internal.GetShard(intKey, rn.shards)
		shard.Data.Store(intKey, internal.Entry{
			Key:       key,
			Value:     value,
			ExpiresAt: expiresAt,
		})

		if expiresAt != 0 {
			shard.Schedule(intKey, expiresAt)
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (rn *rowanImpl) GetInfo() db.DatabaseInfo {
	now := time.Now().UnixNano()

	entries := 0
	expiredBacklog := 0
	for _, shard := range rn.shards {
		shard.Data.Range(func(_ util.UintKey, entry internal.Entry) bool {
			if entry.Expired(now) {
				expiredBacklog++
			} else {
				entries++
			}
			return true
		})
	}

	meta := &struct {
		ShardCount     int `json:"shard_count"`
		ExpiredBacklog int `json:"expired_backlog"`
	}{
		ShardCount:     len(rn.shards),
		ExpiredBacklog: expiredBacklog,
	}

	return db.DatabaseInfo{
		Entries: entries,
		DbType:  db.ImplRowan,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureSetIfUnset, db.FeatureSetIfExists,
			db.FeatureGet, db.FeatureDelete, db.FeatureRange,
			db.FeatureSave, db.FeatureLoad,
			db.FeatureGarbageCollect,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (rn *rowanImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureSetIfUnset |
		db.FeatureSetIfExists |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureRange |
		db.FeatureSave |
		db.FeatureLoad |
		db.FeatureGarbageCollect
	return supportedFeatures&feature == feature
}

// Close stops the garbage collector
func (rn *rowanImpl) Close() error {
	rn.stopGC()
	return nil
}
