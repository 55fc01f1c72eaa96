package serializer

import (
	"testing"
	"time"
)

type testRecord struct {
	LockID     string
	ResourceID string
	ExpiresAt  time.Time
}

func TestRoundtrip(t *testing.T) {
	impls := map[string]ISerializer{
		"json": NewJSONSerializer(),
		"gob":  NewGOBSerializer(),
	}

	original := testRecord{
		LockID:     "0ed0a80e-7d3c-4a9d-8b3e-111111111111",
		ResourceID: "do_1234",
		ExpiresAt:  time.Now().Add(time.Hour).Truncate(time.Millisecond),
	}

	for name, s := range impls {
		t.Run(name, func(t *testing.T) {
			b, err := s.Serialize(&original)
			if err != nil {
				t.Fatalf("Serialize failed: %v", err)
			}

			var decoded testRecord
			if err := s.Deserialize(b, &decoded); err != nil {
				t.Fatalf("Deserialize failed: %v", err)
			}

			if decoded.LockID != original.LockID || decoded.ResourceID != original.ResourceID {
				t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
			}
			if !decoded.ExpiresAt.Equal(original.ExpiresAt) {
				t.Errorf("timestamp mismatch: got %v, want %v", decoded.ExpiresAt, original.ExpiresAt)
			}
		})
	}
}

func TestDeserializeGarbage(t *testing.T) {
	for name, s := range map[string]ISerializer{
		"json": NewJSONSerializer(),
		"gob":  NewGOBSerializer(),
	} {
		t.Run(name, func(t *testing.T) {
			var decoded testRecord
			if err := s.Deserialize([]byte("not a record"), &decoded); err == nil {
				t.Error("expected an error for garbage input")
			}
		})
	}
}
