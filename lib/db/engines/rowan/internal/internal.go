package internal

import (
	"sync"

	"github.com/project-sunbird/sunbird-lock-service/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (key-value pair with metadata)
// --------------------------------------------------------------------------

// Entry stores a key-value pair with its expiry metadata.
// The original string key is kept so live rows can be enumerated.
type Entry struct {
	Key       string // Original (unhashed) row key
	Value     []byte // Row data
	ExpiresAt int64  // Unix-nano expiry deadline, 0 = never expires
}

// Expired reports whether the entry's deadline has passed at the given
// unix-nano timestamp.
func (e Entry) Expired(now int64) bool {
	return e.ExpiresAt != 0 && now >= e.ExpiresAt
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database. Row data lives in a
// concurrent map; expiry deadlines live in a mutex-guarded queue that is
// written by the mutating operations and drained by the garbage collector.
type Shard struct {
	Data *xsync.MapOf[util.UintKey, Entry] // Map of key-value entries

	mu        sync.Mutex
	deadlines *util.DeadlineQueue
}

// NewShard creates a new shard with the provided hash function
func NewShard(hasher func(util.UintKey, uint64) uint64) *Shard {
	return &Shard{
		Data:      xsync.NewMapOfWithHasher[util.UintKey, Entry](hasher),
		deadlines: util.NewDeadlineQueue(),
	}
}

// Schedule registers (or moves) the expiry deadline for a row.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Shard) Schedule(key util.UintKey, at int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadlines.Schedule(uint64(key), at)
}

// Unschedule drops any pending deadline for a row.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Shard) Unschedule(key util.UintKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadlines.RemoveByKey(uint64(key))
}

// PopDue removes and returns all keys whose deadline has passed at the
// given unix-nano timestamp.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Shard) PopDue(now int64) []util.UintKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []util.UintKey
	for {
		item, ok := s.deadlines.Peek()
		if !ok || item.At > now {
			return due
		}
		due = append(due, util.UintKey(item.Key))
		s.deadlines.RemoveByKey(item.Key)
	}
}

// GetShard returns the appropriate shard for a given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard(key util.UintKey, shards []*Shard) *Shard {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(key) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}
