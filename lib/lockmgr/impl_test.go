package lockmgr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-sunbird/sunbird-lock-service/lib/db/engines/rowan"
	"github.com/project-sunbird/sunbird-lock-service/lib/lockstore"
	"github.com/project-sunbird/sunbird-lock-service/lib/lockstore/lstore"
	"github.com/project-sunbird/sunbird-lock-service/lib/resource"
	"github.com/project-sunbird/sunbird-lock-service/lib/serializer"
)

// --------------------------------------------------------------------------
// Test Doubles
// --------------------------------------------------------------------------

// fakeResourceSystem plays the owning system: it validates lockability
// and records version updates like the real one would.
type fakeResourceSystem struct {
	mu sync.Mutex

	lockable   bool
	denyReason string
	versionKey string
	lockKey    string

	notifyAccepted bool
	notifyErr      error
	notifyCalls    int
}

func newFakeResourceSystem() *fakeResourceSystem {
	return &fakeResourceSystem{
		lockable:       true,
		versionKey:     "v-1",
		notifyAccepted: true,
	}
}

func (f *fakeResourceSystem) Check(_ context.Context, ref resource.ResourceRef, _ map[string]string) (resource.CheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.lockable {
		return resource.CheckResult{Lockable: false, Reason: f.denyReason}, nil
	}
	return resource.CheckResult{
		Lockable: true,
		Snapshot: resource.ResourceSnapshot{
			VersionKey: f.versionKey,
			LockKey:    f.lockKey,
			Raw:        []byte(`{"versionKey":"` + f.versionKey + `"}`),
		},
	}, nil
}

func (f *fakeResourceSystem) Notify(_ context.Context, _, lockID, _ string, _ map[string]string) (resource.NotifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifyCalls++
	if f.notifyErr != nil {
		return resource.NotifyResult{}, f.notifyErr
	}
	if !f.notifyAccepted {
		return resource.NotifyResult{Accepted: false}, nil
	}
	// the owning system bumps the version and remembers the lock key
	f.lockKey = lockID
	f.versionKey = f.versionKey + "+"
	return resource.NotifyResult{Accepted: true, VersionKey: f.versionKey}, nil
}

// --------------------------------------------------------------------------
// Fixtures
// --------------------------------------------------------------------------

type fixture struct {
	manager ILockManager
	system  *fakeResourceSystem
	store   lockstore.ILockStore
}

func newFixture(t *testing.T, config Config) *fixture {
	t.Helper()

	database := rowan.NewRowanDB(&rowan.DBOptions{
		NumShards:  4,
		GCInterval: 10 * time.Millisecond,
	})
	store, err := lstore.NewLockStore(database, serializer.NewJSONSerializer())
	require.NoError(t, err)

	system := newFakeResourceSystem()
	manager := NewLockManager(config, store, system, system, nil)
	t.Cleanup(func() { _ = manager.Close() })

	return &fixture{manager: manager, system: system, store: store}
}

func alice() Caller {
	return Caller{
		UserID:   "alice",
		DeviceID: "device-a",
		UserName: "Alice A",
		Headers:  map[string]string{"x-authenticated-userid": "alice"},
	}
}

func bob() Caller {
	return Caller{
		UserID:   "bob",
		DeviceID: "device-b",
		UserName: "Bob B",
		Headers:  map[string]string{"x-authenticated-userid": "bob"},
	}
}

func acquireReq(resourceID string, caller Caller) AcquireRequest {
	return AcquireRequest{
		ResourceID:   resourceID,
		ResourceType: "content",
		ResourceInfo: `{"contentType":"Resource"}`,
		CreatedBy:    caller.UserID,
		CreatorInfo:  `{"name":"` + caller.UserName + `","id":"` + caller.UserID + `"}`,
	}
}

func errCode(t *testing.T, err error) ErrorCode {
	t.Helper()
	var lockErr *Error
	require.ErrorAs(t, err, &lockErr)
	return lockErr.Code
}

// --------------------------------------------------------------------------
// Acquire
// --------------------------------------------------------------------------

func TestAcquire(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	result, err := f.manager.Acquire(context.Background(), alice(), acquireReq("do_100", alice()))
	require.NoError(t, err)

	assert.NotEmpty(t, result.LockKey)
	assert.Equal(t, 60.0, result.ExpiresIn)
	assert.True(t, result.ExpiresAt.After(time.Now().Add(59*time.Minute)))

	// the owning system accepted the notification, so the version is fresh
	assert.Equal(t, "v-1+", result.VersionKey)
	assert.Equal(t, 1, f.system.notifyCalls)
}

func TestAcquireIdempotentSameDevice(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	first, err := f.manager.Acquire(ctx, alice(), acquireReq("do_100", alice()))
	require.NoError(t, err)

	second, err := f.manager.Acquire(ctx, alice(), acquireReq("do_100", alice()))
	require.NoError(t, err)

	assert.Equal(t, first.LockKey, second.LockKey)

	// the re-acquire must not notify the owning system again; the caller
	// gets the version key the validation snapshot reported
	assert.Equal(t, 1, f.system.notifyCalls)
	assert.Equal(t, "v-1+", second.VersionKey)
}

func TestAcquireSelfConflictOtherDevice(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	_, err := f.manager.Acquire(ctx, alice(), acquireReq("do_100", alice()))
	require.NoError(t, err)

	otherDevice := alice()
	otherDevice.DeviceID = "device-x"
	_, err = f.manager.Acquire(ctx, otherDevice, acquireReq("do_100", otherDevice))
	require.Error(t, err)
	assert.Equal(t, CodeSelfLockConflict, errCode(t, err))
}

func TestAcquireAlreadyLocked(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	_, err := f.manager.Acquire(ctx, alice(), acquireReq("do_100", alice()))
	require.NoError(t, err)

	_, err = f.manager.Acquire(ctx, bob(), acquireReq("do_100", bob()))
	require.Error(t, err)
	assert.Equal(t, CodeAlreadyLocked, errCode(t, err))

	// the denial names the current holder
	var lockErr *Error
	require.ErrorAs(t, err, &lockErr)
	assert.Contains(t, lockErr.Msg, "Alice A")
	assert.Equal(t, 423, lockErr.HTTPStatus())
}

func TestAcquireAlreadyLockedUnknownCreator(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	req := acquireReq("do_100", alice())
	req.CreatorInfo = "not json"
	_, err := f.manager.Acquire(ctx, alice(), req)
	require.NoError(t, err)

	_, err = f.manager.Acquire(ctx, bob(), acquireReq("do_100", bob()))
	require.Error(t, err)

	var lockErr *Error
	require.ErrorAs(t, err, &lockErr)
	assert.Contains(t, lockErr.Msg, "another user")
}

func TestAcquireOnBehalfOfOtherUser(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	_, err := f.manager.Acquire(context.Background(), alice(), acquireReq("do_100", bob()))
	require.Error(t, err)
	assert.Equal(t, CodeUnauthorized, errCode(t, err))
}

func TestAcquireMissingDeviceID(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	noDevice := alice()
	noDevice.DeviceID = ""
	_, err := f.manager.Acquire(context.Background(), noDevice, acquireReq("do_100", noDevice))
	require.Error(t, err)
	assert.Equal(t, CodeValidationFailed, errCode(t, err))

	var lockErr *Error
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, 400, lockErr.HTTPStatus())
}

func TestAcquireMissingFields(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	req := acquireReq("do_100", alice())
	req.ResourceInfo = ""
	_, err := f.manager.Acquire(context.Background(), alice(), req)
	require.Error(t, err)
	assert.Equal(t, CodeValidationFailed, errCode(t, err))
}

func TestAcquireValidationDenied(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.system.lockable = false
	f.system.denyReason = "The content is not in draft state"

	_, err := f.manager.Acquire(context.Background(), alice(), acquireReq("do_100", alice()))
	require.Error(t, err)
	assert.Equal(t, CodeValidationFailed, errCode(t, err))

	var lockErr *Error
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, "The content is not in draft state", lockErr.Msg)
	assert.Equal(t, 412, lockErr.HTTPStatus())
}

func TestAcquireNotifyFailureKeepsLock(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.system.notifyAccepted = false

	result, err := f.manager.Acquire(context.Background(), alice(), acquireReq("do_100", alice()))
	require.NoError(t, err)

	// the lock is granted, the caller just sees the pre-acquire version
	assert.Equal(t, "v-1", result.VersionKey)

	_, found, err := f.store.FindOne("do_100", "content")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestAcquireAfterExpiry(t *testing.T) {
	f := newFixture(t, Config{LeaseSecond: 1})
	ctx := context.Background()

	// shrink the lease below a second via the store directly: acquire,
	// then overwrite the record with a tiny ttl
	_, err := f.manager.Acquire(ctx, alice(), acquireReq("do_100", alice()))
	require.NoError(t, err)

	record, found, err := f.store.FindOne("do_100", "content")
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, f.store.Update(record, 50*time.Millisecond))

	time.Sleep(100 * time.Millisecond)

	result, err := f.manager.Acquire(ctx, bob(), acquireReq("do_100", bob()))
	require.NoError(t, err)
	assert.NotEmpty(t, result.LockKey)
}

func TestAcquireConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	const goroutines = 16
	callers := make([]Caller, goroutines)
	for i := range callers {
		callers[i] = Caller{
			UserID:   "user-" + string(rune('a'+i)),
			DeviceID: "device-" + string(rune('a'+i)),
			UserName: "User " + string(rune('A'+i)),
		}
	}

	var wg sync.WaitGroup
	results := make([]*AcquireResult, goroutines)
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.manager.Acquire(ctx, callers[i], acquireReq("do_100", callers[i]))
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < goroutines; i++ {
		if errs[i] == nil {
			winners++
			continue
		}
		assert.Equal(t, CodeAlreadyLocked, errCode(t, errs[i]))
	}
	assert.Equal(t, 1, winners, "exactly one concurrent acquire must win")
}

// --------------------------------------------------------------------------
// Refresh
// --------------------------------------------------------------------------

func TestRefresh(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	acquired, err := f.manager.Acquire(ctx, alice(), acquireReq("do_100", alice()))
	require.NoError(t, err)

	refreshed, err := f.manager.Refresh(ctx, alice(), RefreshRequest{
		LockID:       acquired.LockKey,
		ResourceID:   "do_100",
		ResourceType: "content",
	})
	require.NoError(t, err)

	assert.Equal(t, acquired.LockKey, refreshed.LockKey)
	assert.True(t, refreshed.ExpiresAt.After(time.Now().Add(59*time.Minute)))
	assert.Equal(t, 60.0, refreshed.ExpiresIn)
}

func TestRefreshWrongLockKey(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	_, err := f.manager.Acquire(ctx, alice(), acquireReq("do_100", alice()))
	require.NoError(t, err)

	_, err = f.manager.Refresh(ctx, alice(), RefreshRequest{
		LockID:       "not-the-lock-key",
		ResourceID:   "do_100",
		ResourceType: "content",
	})
	require.Error(t, err)
	assert.Equal(t, CodeLockKeyMismatch, errCode(t, err))

	var lockErr *Error
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, 422, lockErr.HTTPStatus())
}

func TestRefreshByOtherUser(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	acquired, err := f.manager.Acquire(ctx, alice(), acquireReq("do_100", alice()))
	require.NoError(t, err)

	_, err = f.manager.Refresh(ctx, bob(), RefreshRequest{
		LockID:       acquired.LockKey,
		ResourceID:   "do_100",
		ResourceType: "content",
	})
	require.Error(t, err)
	assert.Equal(t, CodeUnauthorized, errCode(t, err))
}

func TestRefreshReconcilesExpiredLock(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	acquired, err := f.manager.Acquire(ctx, alice(), acquireReq("do_100", alice()))
	require.NoError(t, err)

	// the lease runs out but the owning system still carries the lock key
	record, found, err := f.store.FindOne("do_100", "content")
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, f.store.Update(record, 50*time.Millisecond))
	time.Sleep(100 * time.Millisecond)

	refreshed, err := f.manager.Refresh(ctx, alice(), RefreshRequest{
		LockID:       acquired.LockKey,
		ResourceID:   "do_100",
		ResourceType: "content",
	})
	require.NoError(t, err)

	// a fresh lock under a new key replaces the expired one
	assert.NotEmpty(t, refreshed.LockKey)
	assert.NotEqual(t, acquired.LockKey, refreshed.LockKey)

	reacquired, found, err := f.store.FindOne("do_100", "content")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alice", reacquired.CreatedBy)
	assert.Contains(t, reacquired.CreatorInfo, "Alice A")
}

// vanishingStore simulates the record's lease running out between the
// refresh lookup and the conditional update.
type vanishingStore struct {
	lockstore.ILockStore
}

func (s *vanishingStore) Update(record *lockstore.LockRecord, _ time.Duration) error {
	return &lockstore.Error{
		Code: lockstore.RetCNotFound,
		Msg:  "no lock exists for " + record.Key(),
	}
}

func TestRefreshUpdateRace(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	acquired, err := f.manager.Acquire(ctx, alice(), acquireReq("do_100", alice()))
	require.NoError(t, err)

	racey := NewLockManager(DefaultConfig(), &vanishingStore{f.store}, f.system, f.system, nil)
	_, err = racey.Refresh(ctx, alice(), RefreshRequest{
		LockID:       acquired.LockKey,
		ResourceID:   "do_100",
		ResourceType: "content",
	})
	require.Error(t, err)
	assert.Equal(t, CodeServerError, errCode(t, err))

	// the held lock must be untouched by the failed refresh
	record, found, findErr := f.store.FindOne("do_100", "content")
	require.NoError(t, findErr)
	require.True(t, found)
	assert.Equal(t, acquired.LockKey, record.LockID)
}

func TestRefreshMissingFields(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	_, err := f.manager.Refresh(context.Background(), alice(), RefreshRequest{
		ResourceID:   "do_100",
		ResourceType: "content",
	})
	require.Error(t, err)
	assert.Equal(t, CodeValidationFailed, errCode(t, err))
}

// --------------------------------------------------------------------------
// Release
// --------------------------------------------------------------------------

func TestRelease(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	_, err := f.manager.Acquire(ctx, alice(), acquireReq("do_100", alice()))
	require.NoError(t, err)

	require.NoError(t, f.manager.Release(ctx, alice(), ReleaseRequest{
		ResourceID:   "do_100",
		ResourceType: "content",
	}))

	// the slot is free again
	_, err = f.manager.Acquire(ctx, bob(), acquireReq("do_100", bob()))
	require.NoError(t, err)
}

func TestReleaseNotFound(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	err := f.manager.Release(context.Background(), alice(), ReleaseRequest{
		ResourceID:   "do_404",
		ResourceType: "content",
	})
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, errCode(t, err))
}

func TestReleaseByOtherUser(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	_, err := f.manager.Acquire(ctx, alice(), acquireReq("do_100", alice()))
	require.NoError(t, err)

	err = f.manager.Release(ctx, bob(), ReleaseRequest{
		ResourceID:   "do_100",
		ResourceType: "content",
	})
	require.Error(t, err)
	assert.Equal(t, CodeUnauthorized, errCode(t, err))

	// the lock must survive the failed release
	_, found, findErr := f.store.FindOne("do_100", "content")
	require.NoError(t, findErr)
	assert.True(t, found)
}

// --------------------------------------------------------------------------
// List
// --------------------------------------------------------------------------

func TestList(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	for _, id := range []string{"do_1", "do_2", "do_3"} {
		_, err := f.manager.Acquire(ctx, alice(), acquireReq(id, alice()))
		require.NoError(t, err)
	}

	all, err := f.manager.List(ctx, alice(), ListRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Count)

	some, err := f.manager.List(ctx, alice(), ListRequest{ResourceIDs: []string{"do_1", "do_3"}})
	require.NoError(t, err)
	assert.Equal(t, 2, some.Count)
}

func TestListEmpty(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	result, err := f.manager.List(context.Background(), alice(), ListRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
	assert.NotNil(t, result.Data)
}

func TestListMissingDeviceID(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	noDevice := alice()
	noDevice.DeviceID = ""
	_, err := f.manager.List(context.Background(), noDevice, ListRequest{})
	require.Error(t, err)
	assert.Equal(t, CodeValidationFailed, errCode(t, err))
}
