package util

import (
	"container/heap"
	"strconv"
)

// Deadline represents a scheduled expiry in the queue,
// with a uint64 key for identification and a unix-nano deadline as priority.
type Deadline struct {
	Key   uint64 // Unique identifier for the row
	At    int64  // Unix-nano timestamp when the row expires
	index int    // Index in the heap, maintained by heap package
}

func (d *Deadline) String() string {
	return "{Key: " + strconv.FormatUint(d.Key, 10) + ", At: " + strconv.FormatInt(d.At, 10) + "}"
}

// DeadlineQueue implements a priority queue of row expiry deadlines: a
// binary min-heap combined with a hash map, so the garbage collector can
// pop the next row due to expire and a writer can unschedule a specific
// row by key when it is rewritten or deleted before its deadline.
//
// Not thread-safe, callers must synchronize access.
type DeadlineQueue struct {
	items    []*Deadline          // The actual heap slice
	itemsMap map[uint64]*Deadline // Map for O(1) access by key
}

// NewDeadlineQueue creates a new empty deadline queue
func NewDeadlineQueue() *DeadlineQueue {
	return &DeadlineQueue{
		items:    make([]*Deadline, 0),
		itemsMap: make(map[uint64]*Deadline),
	}
}

// Len returns the number of items in the queue (part of heap.Interface)
func (dq *DeadlineQueue) Len() int { return len(dq.items) }

// Less compares items by deadline, earliest first (part of heap.Interface)
func (dq *DeadlineQueue) Less(i, j int) bool {
	return dq.items[i].At < dq.items[j].At
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (dq *DeadlineQueue) Swap(i, j int) {
	dq.items[i], dq.items[j] = dq.items[j], dq.items[i]
	dq.items[i].index = i
	dq.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface)
func (dq *DeadlineQueue) Push(x interface{}) {
	n := len(dq.items)
	item := x.(*Deadline)
	item.index = n
	dq.items = append(dq.items, item)
	dq.itemsMap[item.Key] = item
}

// Pop removes and returns the earliest item (part of heap.Interface)
func (dq *DeadlineQueue) Pop() interface{} {
	old := dq.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.index = -1 // For safety
	dq.items = old[:n-1]
	delete(dq.itemsMap, item.Key)
	return item
}

// Schedule adds a new deadline for key or updates the existing one
func (dq *DeadlineQueue) Schedule(key uint64, at int64) {
	// Check if the key is already scheduled
	if item, exists := dq.itemsMap[key]; exists {
		// Update deadline and fix heap
		item.At = at
		heap.Fix(dq, item.index)
		return
	}

	// Create and add new item
	item := &Deadline{
		Key: key,
		At:  at,
	}
	heap.Push(dq, item)
}

// RemoveByKey unschedules a deadline by its key
func (dq *DeadlineQueue) RemoveByKey(key uint64) (int64, bool) {
	item, exists := dq.itemsMap[key]
	if !exists {
		return 0, false
	}

	// Remove from heap
	heap.Remove(dq, item.index)
	return item.At, true
}

// Peek returns the earliest deadline without removing it
func (dq *DeadlineQueue) Peek() (*Deadline, bool) {
	if len(dq.items) == 0 {
		return nil, false
	}
	return dq.items[0], true
}

// Contains checks if a key is scheduled
func (dq *DeadlineQueue) Contains(key uint64) bool {
	_, exists := dq.itemsMap[key]
	return exists
}
