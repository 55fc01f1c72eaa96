package lockmgr

import (
	"context"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"

	"github.com/project-sunbird/sunbird-lock-service/lib/lockstore"
	"github.com/project-sunbird/sunbird-lock-service/lib/logger"
	"github.com/project-sunbird/sunbird-lock-service/lib/resource"
)

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config holds the tunables of the lock manager.
type Config struct {
	// LeaseSecond is the lease length granted on acquire and refresh
	LeaseSecond int
}

// DefaultConfig returns the default lock manager configuration.
func DefaultConfig() Config {
	return Config{
		LeaseSecond: 3600,
	}
}

// --------------------------------------------------------------------------
// Manager Implementation
// --------------------------------------------------------------------------

// NewLockManager creates a lock manager over the given store and
// collaborators. A nil logger disables logging.
func NewLockManager(
	config Config,
	store lockstore.ILockStore,
	validator resource.IResourceValidator,
	notifier resource.IVersionNotifier,
	log logger.ILogger,
) ILockManager {
	if config.LeaseSecond <= 0 {
		config.LeaseSecond = DefaultConfig().LeaseSecond
	}
	if log == nil {
		log = logger.NewNoOp()
	}
	return &managerImpl{
		store:     store,
		validator: validator,
		notifier:  notifier,
		policy:    NewExpiryPolicy(config.LeaseSecond),
		logger:    log.WithComponent("lockmgr"),

		acquireTotal:  metrics.GetOrCreateCounter(`lock_operations_total{op="acquire"}`),
		refreshTotal:  metrics.GetOrCreateCounter(`lock_operations_total{op="refresh"}`),
		releaseTotal:  metrics.GetOrCreateCounter(`lock_operations_total{op="release"}`),
		listTotal:     metrics.GetOrCreateCounter(`lock_operations_total{op="list"}`),
		conflictTotal: metrics.GetOrCreateCounter(`lock_conflicts_total`),
		notifyErrors:  metrics.GetOrCreateCounter(`lock_notify_errors_total`),
	}
}

type managerImpl struct {
	store     lockstore.ILockStore
	validator resource.IResourceValidator
	notifier  resource.IVersionNotifier
	policy    ExpiryPolicy
	logger    logger.ILogger

	acquireTotal  *metrics.Counter
	refreshTotal  *metrics.Counter
	releaseTotal  *metrics.Counter
	listTotal     *metrics.Counter
	conflictTotal *metrics.Counter
	notifyErrors  *metrics.Counter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockmgr.ILockManager)
// --------------------------------------------------------------------------

func (m *managerImpl) Acquire(ctx context.Context, caller Caller, req AcquireRequest) (*AcquireResult, error) {
	m.acquireTotal.Inc()

	if err := requireFields(map[string]string{
		"x-device-id":  caller.DeviceID,
		"resourceId":   req.ResourceID,
		"resourceType": req.ResourceType,
		"resourceInfo": req.ResourceInfo,
		"createdBy":    req.CreatedBy,
		"creatorInfo":  req.CreatorInfo,
	}); err != nil {
		return nil, err
	}
	if caller.UserID != req.CreatedBy {
		m.logger.Warningf("acquire on behalf of %s rejected for caller %s", req.CreatedBy, caller.UserID)
		return nil, newError(CodeUnauthorized, "you are not authorized to lock this resource")
	}

	check, err := m.check(ctx, caller, req.ResourceID, req.ResourceType)
	if err != nil {
		return nil, err
	}

	result, inserted, lockErr := m.acquire(caller, req, check.Snapshot.VersionKey)
	if lockErr != nil {
		return nil, lockErr
	}

	// only a fresh insert is announced; an idempotent re-acquire leaves the
	// owning system's lock key and version untouched
	if inserted {
		result.VersionKey = m.notify(ctx, caller, req.ResourceID, result.LockKey, check.Snapshot.VersionKey)
	}
	return result, nil
}

func (m *managerImpl) Refresh(ctx context.Context, caller Caller, req RefreshRequest) (*RefreshResult, error) {
	m.refreshTotal.Inc()

	if err := requireFields(map[string]string{
		"x-device-id":  caller.DeviceID,
		"lockId":       req.LockID,
		"resourceId":   req.ResourceID,
		"resourceType": req.ResourceType,
	}); err != nil {
		return nil, err
	}

	check, err := m.check(ctx, caller, req.ResourceID, req.ResourceType)
	if err != nil {
		return nil, err
	}

	// the owning system is authoritative for which lock key is current
	if check.Snapshot.LockKey != req.LockID {
		m.logger.Warningf("refresh of %s/%s with stale lock key", req.ResourceType, req.ResourceID)
		return nil, newError(CodeLockKeyMismatch, "lock key and request lock key does not match")
	}

	record, found, findErr := m.store.FindOne(req.ResourceID, req.ResourceType)
	if findErr != nil {
		m.logger.Errorf("refresh lookup for %s/%s failed: %v", req.ResourceType, req.ResourceID, findErr)
		return nil, newError(CodeServerError, "failed to refresh the lock")
	}

	if found {
		if record.CreatedBy != caller.UserID {
			return nil, newError(CodeUnauthorized, "you are not authorized to refresh this lock")
		}

		record.ExpiresAt = m.policy.ExpiresAt()
		if updateErr := m.store.Update(record, m.policy.Lease()); updateErr != nil {
			// a notFound here means the lease ran out between lookup and
			// update; surfaced as a server error so the caller retries
			// against a clean read
			m.logger.Errorf("refresh update for %s/%s failed: %v", req.ResourceType, req.ResourceID, updateErr)
			return nil, newError(CodeServerError, "failed to refresh the lock")
		}
		return &RefreshResult{
			LockKey:   record.LockID,
			ExpiresAt: record.ExpiresAt,
			ExpiresIn: m.policy.Minutes(),
		}, nil
	}

	// The record is gone but the owning system still carries the presented
	// lock key: the holder's lease ran out without a competing acquire.
	// Take a fresh lock on the caller's behalf.
	m.logger.Infof("reconciling expired lock on %s/%s for %s", req.ResourceType, req.ResourceID, caller.UserID)
	reacquire := AcquireRequest{
		ResourceID:   req.ResourceID,
		ResourceType: req.ResourceType,
		ResourceInfo: string(check.Snapshot.Raw),
		CreatedBy:    caller.UserID,
		CreatorInfo:  encodeCreatorInfo(caller),
	}
	if reacquire.ResourceInfo == "" {
		reacquire.ResourceInfo = "{}"
	}

	result, inserted, lockErr := m.acquire(caller, reacquire, check.Snapshot.VersionKey)
	if lockErr != nil {
		return nil, lockErr
	}

	versionKey := check.Snapshot.VersionKey
	if inserted {
		versionKey = m.notify(ctx, caller, req.ResourceID, result.LockKey, versionKey)
	}
	return &RefreshResult{
		LockKey:    result.LockKey,
		ExpiresAt:  result.ExpiresAt,
		ExpiresIn:  result.ExpiresIn,
		VersionKey: versionKey,
	}, nil
}

func (m *managerImpl) Release(ctx context.Context, caller Caller, req ReleaseRequest) error {
	m.releaseTotal.Inc()

	if err := requireFields(map[string]string{
		"x-device-id":  caller.DeviceID,
		"resourceId":   req.ResourceID,
		"resourceType": req.ResourceType,
	}); err != nil {
		return err
	}

	if _, err := m.check(ctx, caller, req.ResourceID, req.ResourceType); err != nil {
		return err
	}

	record, found, err := m.store.FindOne(req.ResourceID, req.ResourceType)
	if err != nil {
		m.logger.Errorf("release lookup for %s/%s failed: %v", req.ResourceType, req.ResourceID, err)
		return newError(CodeServerError, "failed to release the lock")
	}
	if !found {
		return newError(CodeNotFound, "no lock found for the resource")
	}
	if record.CreatedBy != caller.UserID {
		return newError(CodeUnauthorized, "you are not authorized to release this lock")
	}

	if _, err := m.store.Delete(req.ResourceID, req.ResourceType); err != nil {
		m.logger.Errorf("release of %s/%s failed: %v", req.ResourceType, req.ResourceID, err)
		return newError(CodeServerError, "failed to release the lock")
	}

	m.logger.Infof("released lock on %s/%s", req.ResourceType, req.ResourceID)
	return nil
}

func (m *managerImpl) List(ctx context.Context, caller Caller, req ListRequest) (*ListResult, error) {
	m.listTotal.Inc()

	if err := requireFields(map[string]string{"x-device-id": caller.DeviceID}); err != nil {
		return nil, err
	}

	filter := lockstore.FilterAll
	if len(req.ResourceIDs) > 0 {
		filter = lockstore.FilterByResourceIDs(req.ResourceIDs...)
	}

	records, err := m.store.List(filter)
	if err != nil {
		m.logger.Errorf("list failed: %v", err)
		return nil, newError(CodeServerError, "failed to list locks")
	}
	if records == nil {
		records = []*lockstore.LockRecord{}
	}
	return &ListResult{Count: len(records), Data: records}, nil
}

func (m *managerImpl) Close() error {
	return m.store.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// check asks the owning system whether the resource may be locked by the
// caller and maps denials onto the error taxonomy.
func (m *managerImpl) check(ctx context.Context, caller Caller, resourceID, resourceType string) (resource.CheckResult, error) {
	ref := resource.ResourceRef{ResourceID: resourceID, ResourceType: resourceType}
	result, err := m.validator.Check(ctx, ref, caller.Headers)
	if err != nil {
		m.logger.Errorf("resource validation for %s/%s failed: %v", resourceType, resourceID, err)
		return resource.CheckResult{}, newError(CodeServerError, "resource validation failed")
	}
	if !result.Lockable {
		return resource.CheckResult{}, newError(CodeValidationFailed, "%s", result.Reason).withStatus(412)
	}
	return result, nil
}

// acquire stores a new lock record, resolving contention via the decision
// table: same user and device succeeds idempotently, same user on a
// different device is a self conflict, anyone else finds the resource
// already locked. The bool reports whether a fresh record was inserted,
// false on the idempotent path.
func (m *managerImpl) acquire(caller Caller, req AcquireRequest, versionKey string) (*AcquireResult, bool, *Error) {
	existing, found, err := m.store.FindOne(req.ResourceID, req.ResourceType)
	if err != nil {
		m.logger.Errorf("acquire lookup for %s/%s failed: %v", req.ResourceType, req.ResourceID, err)
		return nil, false, newError(CodeServerError, "failed to acquire the lock")
	}
	if found {
		result, resolveErr := m.resolveContention(caller, req, existing, versionKey)
		return result, false, resolveErr
	}

	record := &lockstore.LockRecord{
		LockID:       uuid.NewString(),
		ResourceID:   req.ResourceID,
		ResourceType: req.ResourceType,
		ResourceInfo: req.ResourceInfo,
		CreatedBy:    req.CreatedBy,
		CreatorInfo:  req.CreatorInfo,
		DeviceID:     caller.DeviceID,
		CreatedOn:    m.policy.Now(),
		ExpiresAt:    m.policy.ExpiresAt(),
	}

	if insertErr := m.store.InsertIfAbsent(record, m.policy.Lease()); insertErr != nil {
		if lockstore.CodeOf(insertErr) != lockstore.RetCAlreadyExists {
			m.logger.Errorf("acquire insert for %s/%s failed: %v", req.ResourceType, req.ResourceID, insertErr)
			return nil, false, newError(CodeServerError, "failed to acquire the lock")
		}

		// lost the insert race; one re-read to attribute the conflict
		winner, stillThere, readErr := m.store.FindOne(req.ResourceID, req.ResourceType)
		if readErr != nil || !stillThere {
			m.logger.Errorf("acquire race on %s/%s could not be resolved", req.ResourceType, req.ResourceID)
			return nil, false, newError(CodeServerError, "failed to acquire the lock")
		}
		result, resolveErr := m.resolveContention(caller, req, winner, versionKey)
		return result, false, resolveErr
	}

	m.logger.Infof("lock %s acquired on %s/%s by %s", record.LockID, req.ResourceType, req.ResourceID, req.CreatedBy)
	return &AcquireResult{
		LockKey:    record.LockID,
		ExpiresAt:  record.ExpiresAt,
		ExpiresIn:  m.policy.Minutes(),
		VersionKey: versionKey,
	}, true, nil
}

// resolveContention applies the ownership decision table to a live record
// that blocked an acquire.
func (m *managerImpl) resolveContention(caller Caller, req AcquireRequest, existing *lockstore.LockRecord, versionKey string) (*AcquireResult, *Error) {
	if caller.UserID == existing.CreatedBy &&
		caller.DeviceID == existing.DeviceID &&
		req.ResourceType == existing.ResourceType {
		// same holder, same device: hand out the held lock again
		return &AcquireResult{
			LockKey:    existing.LockID,
			ExpiresAt:  existing.ExpiresAt,
			ExpiresIn:  m.policy.Minutes(),
			VersionKey: versionKey,
		}, nil
	}

	m.conflictTotal.Inc()
	if caller.UserID == existing.CreatedBy {
		m.logger.Warningf("self lock conflict on %s/%s for %s", req.ResourceType, req.ResourceID, caller.UserID)
		return nil, newError(CodeSelfLockConflict, "the resource is already locked by you in another window or device")
	}
	return nil, newError(CodeAlreadyLocked, "the resource is already locked by %s", creatorName(existing.CreatorInfo))
}

// notify tells the owning system about the new lock key. Failures are
// logged and swallowed; the caller then gets the pre-acquire version key.
func (m *managerImpl) notify(ctx context.Context, caller Caller, resourceID, lockKey, versionKey string) string {
	if m.notifier == nil {
		return versionKey
	}

	result, err := m.notifier.Notify(ctx, resourceID, lockKey, versionKey, caller.Headers)
	if err != nil {
		m.notifyErrors.Inc()
		m.logger.Warningf("version update for %s failed, reporting stale version key: %v", resourceID, err)
		return versionKey
	}
	if !result.Accepted {
		m.notifyErrors.Inc()
		m.logger.Warningf("version update for %s not accepted, reporting stale version key", resourceID)
		return versionKey
	}
	return result.VersionKey
}

// interface guard
var _ ILockManager = (*managerImpl)(nil)
