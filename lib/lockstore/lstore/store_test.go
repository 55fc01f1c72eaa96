package lstore

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-sunbird/sunbird-lock-service/lib/db/engines/rowan"
	"github.com/project-sunbird/sunbird-lock-service/lib/lockstore"
	"github.com/project-sunbird/sunbird-lock-service/lib/serializer"
)

func newTestStore(t *testing.T) lockstore.ILockStore {
	t.Helper()
	database := rowan.NewRowanDB(&rowan.DBOptions{
		NumShards:  4,
		GCInterval: 10 * time.Millisecond,
	})
	store, err := NewLockStore(database, serializer.NewJSONSerializer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testRecord(resourceID string) *lockstore.LockRecord {
	now := time.Now().Truncate(time.Millisecond)
	return &lockstore.LockRecord{
		LockID:       uuid.NewString(),
		ResourceID:   resourceID,
		ResourceType: "content",
		ResourceInfo: `{"contentType":"Resource"}`,
		CreatedBy:    "user-1",
		CreatorInfo:  `{"name":"First User","id":"user-1"}`,
		DeviceID:     "device-1",
		CreatedOn:    now,
		ExpiresAt:    now.Add(time.Hour),
	}
}

func TestInsertAndFindOne(t *testing.T) {
	store := newTestStore(t)

	record := testRecord("do_100")
	require.NoError(t, store.InsertIfAbsent(record, time.Hour))

	found, ok, err := store.FindOne("do_100", "content")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record.LockID, found.LockID)
	assert.Equal(t, record.CreatedBy, found.CreatedBy)
	assert.Equal(t, record.DeviceID, found.DeviceID)
	assert.True(t, record.ExpiresAt.Equal(found.ExpiresAt))
}

func TestFindOneMissing(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.FindOne("do_404", "content")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInsertDuplicate(t *testing.T) {
	store := newTestStore(t)

	first := testRecord("do_100")
	require.NoError(t, store.InsertIfAbsent(first, time.Hour))

	second := testRecord("do_100")
	err := store.InsertIfAbsent(second, time.Hour)
	require.Error(t, err)
	assert.Equal(t, lockstore.RetCAlreadyExists, lockstore.CodeOf(err))

	// the first writer's record must be untouched
	found, ok, err := store.FindOne("do_100", "content")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.LockID, found.LockID)
}

func TestKeysAreTypeScoped(t *testing.T) {
	store := newTestStore(t)

	record := testRecord("do_100")
	require.NoError(t, store.InsertIfAbsent(record, time.Hour))

	// same id under a different type is a different lock
	_, ok, err := store.FindOne("do_100", "course")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateMissing(t *testing.T) {
	store := newTestStore(t)

	err := store.Update(testRecord("do_404"), time.Hour)
	require.Error(t, err)
	assert.Equal(t, lockstore.RetCNotFound, lockstore.CodeOf(err))

	// the failed update must not leave a row behind
	_, ok, err := store.FindOne("do_404", "content")
	require.NoError(t, err)
	assert.False(t, ok)

	// and the slot must still accept the next holder
	require.NoError(t, store.InsertIfAbsent(testRecord("do_404"), time.Hour))
}

func TestUpdateExtendsLease(t *testing.T) {
	store := newTestStore(t)

	record := testRecord("do_100")
	require.NoError(t, store.InsertIfAbsent(record, 75*time.Millisecond))

	// renew before the short lease runs out
	record.ExpiresAt = time.Now().Add(time.Hour)
	require.NoError(t, store.Update(record, time.Hour))

	time.Sleep(150 * time.Millisecond)

	found, ok, err := store.FindOne("do_100", "content")
	require.NoError(t, err)
	require.True(t, ok, "renewed record should outlive the original lease")
	assert.Equal(t, record.LockID, found.LockID)
}

func TestLeaseExpiry(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.InsertIfAbsent(testRecord("do_100"), 50*time.Millisecond))
	time.Sleep(100 * time.Millisecond)

	_, ok, err := store.FindOne("do_100", "content")
	require.NoError(t, err)
	assert.False(t, ok)

	// the slot must be free for the next holder
	require.NoError(t, store.InsertIfAbsent(testRecord("do_100"), time.Hour))
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.InsertIfAbsent(testRecord("do_100"), time.Hour))

	existed, err := store.Delete("do_100", "content")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = store.Delete("do_100", "content")
	require.NoError(t, err)
	assert.False(t, existed)

	_, ok, err := store.FindOne("do_100", "content")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestList(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"do_1", "do_2", "do_3"} {
		require.NoError(t, store.InsertIfAbsent(testRecord(id), time.Hour))
	}

	all, err := store.List(lockstore.FilterAll)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := store.List(lockstore.FilterByResourceIDs("do_1", "do_3", "do_999"))
	require.NoError(t, err)
	require.Len(t, some, 2)
	ids := []string{some[0].ResourceID, some[1].ResourceID}
	assert.ElementsMatch(t, []string{"do_1", "do_3"}, ids)
}

func TestListSkipsExpired(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.InsertIfAbsent(testRecord("do_short"), 50*time.Millisecond))
	require.NoError(t, store.InsertIfAbsent(testRecord("do_long"), time.Hour))

	time.Sleep(100 * time.Millisecond)

	records, err := store.List(lockstore.FilterAll)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "do_long", records[0].ResourceID)
}
