package lockmgr

import (
	"context"
	"net/http"
	"time"

	"github.com/project-sunbird/sunbird-lock-service/lib/lockstore"
)

// --------------------------------------------------------------------------
// Caller Identity
// --------------------------------------------------------------------------

// Caller is the authenticated identity performing a lock operation. UserID
// and DeviceID come from the gateway's authentication headers; Headers
// carries the full header set for pass-through to the owning system.
type Caller struct {
	UserID   string
	DeviceID string
	UserName string
	Headers  map[string]string
}

// --------------------------------------------------------------------------
// Request / Result Types
// --------------------------------------------------------------------------

// AcquireRequest asks for a new lock on a resource.
type AcquireRequest struct {
	ResourceID   string `json:"resourceId"`
	ResourceType string `json:"resourceType"`
	ResourceInfo string `json:"resourceInfo"`
	CreatedBy    string `json:"createdBy"`
	CreatorInfo  string `json:"creatorInfo"`
}

// AcquireResult is returned on a successful (or idempotent) acquire.
type AcquireResult struct {
	// LockKey is the token required to refresh the lock
	LockKey string `json:"lockKey"`
	// ExpiresAt is the absolute end of the lease
	ExpiresAt time.Time `json:"expiresAt"`
	// ExpiresIn is the lease length in minutes
	ExpiresIn float64 `json:"expiresIn"`
	// VersionKey is the resource version after the owning system recorded
	// the lock. It may be stale if the notification failed.
	VersionKey string `json:"versionKey"`
}

// RefreshRequest renews the lease of an existing lock. LockID must match
// the key handed out on acquire.
type RefreshRequest struct {
	LockID       string `json:"lockId"`
	ResourceID   string `json:"resourceId"`
	ResourceType string `json:"resourceType"`
}

// RefreshResult is returned on a successful refresh.
type RefreshResult struct {
	LockKey    string    `json:"lockKey"`
	ExpiresAt  time.Time `json:"expiresAt"`
	ExpiresIn  float64   `json:"expiresIn"`
	VersionKey string    `json:"versionKey,omitempty"`
}

// ReleaseRequest removes a lock before its lease runs out.
type ReleaseRequest struct {
	ResourceID   string `json:"resourceId"`
	ResourceType string `json:"resourceType"`
}

// ListRequest queries the currently held locks. An empty ResourceIDs
// slice matches every lock.
type ListRequest struct {
	ResourceIDs []string `json:"resourceId"`
}

// ListResult is the outcome of a List operation.
type ListResult struct {
	Count int                     `json:"count"`
	Data  []*lockstore.LockRecord `json:"data"`
}

// --------------------------------------------------------------------------
// Error Type
// --------------------------------------------------------------------------

// ErrorCode classifies lock operation failures.
type ErrorCode string

const (
	// CodeValidationFailed signals a bad request or a resource the owning
	// system refused to have locked
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// CodeUnauthorized signals a caller acting on another user's behalf
	// or another user's lock
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// CodeSelfLockConflict signals the holder retrying from a different device
	CodeSelfLockConflict ErrorCode = "SELF_LOCK_CONFLICT"
	// CodeAlreadyLocked signals a lock held by a different user
	CodeAlreadyLocked ErrorCode = "ALREADY_LOCKED"
	// CodeLockKeyMismatch signals a refresh with a lock key the owning
	// system does not recognize
	CodeLockKeyMismatch ErrorCode = "LOCK_KEY_MISMATCH"
	// CodeNotFound signals a release of a lock that does not exist
	CodeNotFound ErrorCode = "NOT_FOUND"
	// CodeServerError signals a store or collaborator failure
	CodeServerError ErrorCode = "SERVER_ERROR"
)

// Error is the error type returned by lock managers.
type Error struct {
	Code ErrorCode
	Msg  string

	// status overrides the default HTTP mapping for the code
	status int
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Msg
}

// HTTPStatus returns the HTTP status code a transport should answer with.
func (e *Error) HTTPStatus() int {
	if e.status != 0 {
		return e.status
	}
	switch e.Code {
	case CodeValidationFailed, CodeSelfLockConflict, CodeNotFound:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeAlreadyLocked:
		return http.StatusLocked
	case CodeLockKeyMismatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// --------------------------------------------------------------------------
// Manager Interface
// --------------------------------------------------------------------------

// ILockManager implements the advisory lock lifecycle. All failures are
// returned as *Error with a code from the taxonomy above.
//
// Thread-safety: implementations must be safe for concurrent use; of two
// concurrent Acquire calls for the same resource, at most one wins.
type ILockManager interface {
	// Acquire takes a lock on a resource. Re-acquiring a lock the caller
	// already holds from the same device succeeds idempotently and
	// returns the existing lock key.
	Acquire(ctx context.Context, caller Caller, req AcquireRequest) (*AcquireResult, error)

	// Refresh renews the lease of a held lock. If the lock record is gone
	// but the owning system still carries the presented lock key, a fresh
	// lock is acquired in its place.
	Refresh(ctx context.Context, caller Caller, req RefreshRequest) (*RefreshResult, error)

	// Release removes the caller's lock on a resource.
	Release(ctx context.Context, caller Caller, req ReleaseRequest) error

	// List returns the currently held locks, optionally filtered by
	// resource ids.
	List(ctx context.Context, caller Caller, req ListRequest) (*ListResult, error)

	// Close releases the manager and its lock store.
	Close() error
}
