// Package resource talks to the system that owns the resources being
// locked. Two collaborators are defined: a validator that decides whether
// a resource may be locked by a given caller, and a notifier that tells
// the owning system about lock key changes so concurrent editors are
// fenced off at the versioning level.
package resource

import (
	"context"
	"encoding/json"
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// ResourceRef identifies a resource in the owning system.
type ResourceRef struct {
	ResourceID   string
	ResourceType string
}

// ResourceSnapshot is the owning system's view of a resource at validation
// time. LockKey is non-empty if the owning system already carries a lock
// key for the resource, VersionKey is its current content version.
type ResourceSnapshot struct {
	VersionKey string
	LockKey    string
	// Raw preserves the full resource payload for diagnostics
	Raw json.RawMessage
}

// CheckResult is the outcome of a lockability check.
type CheckResult struct {
	// Lockable reports whether the caller may lock the resource
	Lockable bool
	// Reason is the human-readable denial reason when Lockable is false
	Reason string
	// Snapshot is populated when the owning system returned resource data
	Snapshot ResourceSnapshot
}

// NotifyResult is the outcome of a version notification.
type NotifyResult struct {
	// Accepted reports whether the owning system stored the new lock key
	Accepted bool
	// VersionKey is the resource version after the update, empty if the
	// notification was not accepted
	VersionKey string
}

// --------------------------------------------------------------------------
// Collaborator Interfaces
// --------------------------------------------------------------------------

// IResourceValidator checks with the owning system whether a resource may
// be locked by the calling user. Headers carries the caller's request
// headers, which the owning system uses for authentication.
type IResourceValidator interface {
	Check(ctx context.Context, ref ResourceRef, headers map[string]string) (CheckResult, error)
}

// IVersionNotifier informs the owning system that a lock was acquired, so
// it can record the lock key alongside the resource's version key.
//
// Notifications are best-effort from the lock manager's point of view: a
// failed notification never revokes a lock that is already stored.
type IVersionNotifier interface {
	Notify(ctx context.Context, resourceID, lockID, versionKey string, headers map[string]string) (NotifyResult, error)
}
