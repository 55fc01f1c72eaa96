package util

import (
	"testing"
)

func TestDeadlineQueueOrdering(t *testing.T) {
	dq := NewDeadlineQueue()

	dq.Schedule(1, 300)
	dq.Schedule(2, 100)
	dq.Schedule(3, 200)

	item, ok := dq.Peek()
	if !ok || item.Key != 2 {
		t.Fatalf("expected key 2 at the front, got %v (ok=%v)", item, ok)
	}

	// rescheduling moves the item
	dq.Schedule(2, 400)
	item, _ = dq.Peek()
	if item.Key != 3 {
		t.Fatalf("expected key 3 at the front after reschedule, got %v", item)
	}
}

func TestDeadlineQueueRemoveByKey(t *testing.T) {
	dq := NewDeadlineQueue()

	dq.Schedule(1, 100)
	dq.Schedule(2, 200)

	at, ok := dq.RemoveByKey(1)
	if !ok || at != 100 {
		t.Fatalf("expected to remove key 1 with deadline 100, got %d (ok=%v)", at, ok)
	}

	if dq.Contains(1) {
		t.Fatal("key 1 should not be contained after removal")
	}

	if _, ok := dq.RemoveByKey(42); ok {
		t.Fatal("removing an unknown key should report false")
	}

	if dq.Len() != 1 {
		t.Fatalf("expected 1 remaining item, got %d", dq.Len())
	}
}
