// Package testing provides a reusable test suite for db.KVDB
// implementations. Engines call RunKVDBTests from their own test file with
// a factory, so every backend is verified against the same contract.
package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/project-sunbird/sunbird-lock-service/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("SetIfUnset", func(t *testing.T) {
			testSetIfUnset(t, factory())
		})

		t.Run("SetIfExists", func(t *testing.T) {
			testSetIfExists(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("KeyExpiry", func(t *testing.T) {
			testKeyExpiry(t, factory())
		})

		t.Run("Range", func(t *testing.T) {
			testRange(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("ManyExpiringKeys", func(t *testing.T) {
			testManyExpiringKeys(t, factory())
		})

		t.Run("ConcurrentSetIfUnset", func(t *testing.T) {
			testConcurrentSetIfUnset(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	database.Set(testKey, testValue1, 0)

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	database.Set(testKey, testValue2, 0)

	result, exists = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists = database.Get("nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	// the returned value must be a copy
	retrievedValue, _ := database.Get(testKey)
	retrievedValue[0] = 'X'
	result, _ = database.Get(testKey)
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Mutating a returned value must not affect the stored value")
	}
}

func testSetIfUnset(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetIfUnset|db.FeatureGet)

	if inserted := database.SetIfUnset("key", []byte("first"), 0); !inserted {
		t.Error("Expected insert into empty database to succeed")
	}

	if inserted := database.SetIfUnset("key", []byte("second"), 0); inserted {
		t.Error("Expected insert over an existing row to report false")
	}

	result, _ := database.Get("key")
	if !bytes.Equal(result, []byte("first")) {
		t.Errorf("Expected original value to survive, got %s", result)
	}
}

func testSetIfExists(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetIfExists|db.FeatureSetIfUnset|db.FeatureSet|db.FeatureGet)

	if updated := database.SetIfExists("key", []byte("value"), 0); updated {
		t.Error("Expected update of a missing row to report false")
	}
	if _, exists := database.Get("key"); exists {
		t.Error("Failed SetIfExists must not create the row")
	}

	// the failed update must leave the slot insertable
	if inserted := database.SetIfUnset("key", []byte("old"), 0); !inserted {
		t.Error("Expected SetIfUnset to succeed after a failed SetIfExists")
	}

	if updated := database.SetIfExists("key", []byte("new"), 0); !updated {
		t.Error("Expected update of an existing row to succeed")
	}

	result, _ := database.Get("key")
	if !bytes.Equal(result, []byte("new")) {
		t.Errorf("Expected updated value, got %s", result)
	}

	// an expired row counts as absent for conditional updates
	database.Set("expired", []byte("v"), 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	if updated := database.SetIfExists("expired", []byte("late"), 0); updated {
		t.Error("Expected update of an expired row to report false")
	}
	if _, exists := database.Get("expired"); exists {
		t.Error("Failed SetIfExists must not revive an expired row")
	}
	if inserted := database.SetIfUnset("expired", []byte("fresh"), 0); !inserted {
		t.Error("Expected SetIfUnset to succeed over an expired row after a failed SetIfExists")
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureDelete|db.FeatureGet)

	database.Set("key", []byte("value"), 0)

	if existed := database.Delete("key"); !existed {
		t.Error("Expected delete of an existing row to report true")
	}
	if _, exists := database.Get("key"); exists {
		t.Error("Expected key to be gone after Delete")
	}
	if existed := database.Delete("key"); existed {
		t.Error("Expected delete of a missing row to report false")
	}
}

func testKeyExpiry(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureSetIfUnset|db.FeatureGet)

	database.Set("key", []byte("value"), 50*time.Millisecond)

	if _, exists := database.Get("key"); !exists {
		t.Fatal("Expected key to be live before its TTL elapsed")
	}

	time.Sleep(80 * time.Millisecond)

	if _, exists := database.Get("key"); exists {
		t.Error("Expected key to be absent after its TTL elapsed")
	}

	// an expired row counts as absent for conditional inserts
	if inserted := database.SetIfUnset("key", []byte("fresh"), 0); !inserted {
		t.Error("Expected SetIfUnset to treat the expired row as absent")
	}
}

func testRange(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureRange)

	database.Set("a", []byte("1"), 0)
	database.Set("b", []byte("2"), 0)
	database.Set("expired", []byte("3"), 20*time.Millisecond)

	time.Sleep(40 * time.Millisecond)

	seen := map[string]string{}
	database.Range(func(key string, value []byte) bool {
		seen[key] = string(value)
		return true
	})

	if len(seen) != 2 || seen["a"] != "1" || seen["b"] != "2" {
		t.Errorf("Expected exactly the live rows a and b, got %v", seen)
	}

	// early termination
	count := 0
	database.Range(func(string, []byte) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("Expected Range to stop after fn returned false, visited %d", count)
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	source := factory()
	defer source.Close()

	requireFeature(t, source, db.FeatureSave|db.FeatureLoad)

	for i := 0; i < 100; i++ {
		source.Set(fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("value-%d", i)), 0)
	}
	source.Set("leased", []byte("v"), time.Hour)
	source.Set("expired", []byte("v"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	var buf bytes.Buffer
	if err := source.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	target := factory()
	defer target.Close()
	if err := target.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for i := 0; i < 100; i++ {
		value, exists := target.Get(fmt.Sprintf("key-%d", i))
		if !exists || !bytes.Equal(value, []byte(fmt.Sprintf("value-%d", i))) {
			t.Fatalf("Expected key-%d to survive the roundtrip", i)
		}
	}

	if _, exists := target.Get("leased"); !exists {
		t.Error("Expected row with remaining lease to survive the roundtrip")
	}
	if _, exists := target.Get("expired"); exists {
		t.Error("Expected expired row to be dropped by Save")
	}
}

func testManyExpiringKeys(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureGarbageCollect)

	for i := 0; i < 1000; i++ {
		database.Set(fmt.Sprintf("key-%d", i), []byte("value"), 30*time.Millisecond)
	}

	// wait for expiry plus a few GC cycles
	time.Sleep(400 * time.Millisecond)

	for i := 0; i < 1000; i += 100 {
		if _, exists := database.Get(fmt.Sprintf("key-%d", i)); exists {
			t.Fatalf("Expected key-%d to be expired", i)
		}
	}
}

func testConcurrentSetIfUnset(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetIfUnset)

	const (
		goroutines = 32
		rounds     = 50
	)

	for round := 0; round < rounds; round++ {
		key := fmt.Sprintf("contended-%d", round)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)

		wg.Add(goroutines)
		for g := 0; g < goroutines; g++ {
			go func() {
				defer wg.Done()
				if database.SetIfUnset(key, []byte("owner"), 0) {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if winners != 1 {
			t.Fatalf("Expected exactly one winner for %s, got %d", key, winners)
		}
	}
}
