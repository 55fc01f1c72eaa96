package lockmgr

import (
	"encoding/json"
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Expiry Policy
// --------------------------------------------------------------------------

// ExpiryPolicy computes lease deadlines. The clock is injectable for tests.
type ExpiryPolicy struct {
	LeaseSecond int
	Now         func() time.Time
}

// NewExpiryPolicy creates a policy with the given lease length in seconds.
func NewExpiryPolicy(leaseSecond int) ExpiryPolicy {
	return ExpiryPolicy{LeaseSecond: leaseSecond, Now: time.Now}
}

// Lease returns the lease length as a duration.
func (p ExpiryPolicy) Lease() time.Duration {
	return time.Duration(p.LeaseSecond) * time.Second
}

// ExpiresAt returns the absolute deadline for a lease starting now.
func (p ExpiryPolicy) ExpiresAt() time.Time {
	return p.Now().Add(p.Lease())
}

// Minutes returns the lease length in minutes, as reported to callers.
func (p ExpiryPolicy) Minutes() float64 {
	return float64(p.LeaseSecond) / 60
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// creatorName extracts the display name from a creatorInfo JSON document.
// A record with unparsable creator info is attributed to "another user".
func creatorName(creatorInfo string) string {
	var info struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(creatorInfo), &info); err != nil || info.Name == "" {
		return "another user"
	}
	return info.Name
}

// encodeCreatorInfo builds the creatorInfo document stored with a lock
// that is created on the caller's behalf during refresh reconciliation.
func encodeCreatorInfo(caller Caller) string {
	doc, err := json.Marshal(struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	}{Name: caller.UserName, ID: caller.UserID})
	if err != nil {
		// a struct of two strings cannot fail to marshal
		return "{}"
	}
	return string(doc)
}

// newError creates a manager error with the default HTTP mapping.
func newError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// withStatus overrides the HTTP status of the error.
func (e *Error) withStatus(status int) *Error {
	e.status = status
	return e
}

// requireFields returns a validation error naming the first empty field.
func requireFields(fields map[string]string) *Error {
	// stable order so error messages are deterministic
	for _, name := range []string{"resourceId", "resourceType", "resourceInfo", "createdBy", "creatorInfo", "lockId", "x-device-id"} {
		if value, present := fields[name]; present && value == "" {
			return newError(CodeValidationFailed, "%s is missing in the request", name)
		}
	}
	return nil
}
