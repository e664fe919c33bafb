package record

import "time"

// User is the identity part of the principal as returned by the backend
// sign-in endpoint.
type User struct {
	ID                 string `json:"id,omitempty"`
	Username           string `json:"username,omitempty"`
	Email              string `json:"email,omitempty"`
	Role               string `json:"role,omitempty"`
	MustChangePassword bool   `json:"must_change_password,omitempty"`
}

// Principal is the authenticated-user payload carried by a Record. The
// monitor treats it as opaque apart from the access token.
type Principal struct {
	AccessToken    string   `json:"access_token"`
	RefreshToken   string   `json:"refresh_token,omitempty"`
	TokenType      string   `json:"token_type,omitempty"`
	User           User     `json:"user"`
	PermissionList []string `json:"permission_list,omitempty"`
}

// Valid reports whether the principal can authenticate requests.
func (p Principal) Valid() bool {
	return p.AccessToken != ""
}

// HasPermission reports whether perm is in the permission list.
func (p Principal) HasPermission(perm string) bool {
	for _, have := range p.PermissionList {
		if have == perm {
			return true
		}
	}
	return false
}

// Record is the persisted session: the principal plus its sliding expiry.
//
// ExpiresAtMs is always SessionWindowMs past the last renewal and never moves
// backwards; the record ends only when it is removed from the store.
type Record struct {
	Principal
	SessionWindowMs int64 `json:"sessionWindowMs"`
	ExpiresAtMs     int64 `json:"expiresAtMs"`
}

// New creates a record whose expiry is window past now.
func New(p Principal, window time.Duration, now time.Time) *Record {
	return &Record{
		Principal:       p,
		SessionWindowMs: window.Milliseconds(),
		ExpiresAtMs:     now.UnixMilli() + window.Milliseconds(),
	}
}

// Window returns the sliding window as a duration.
func (r *Record) Window() time.Duration {
	return time.Duration(r.SessionWindowMs) * time.Millisecond
}

// ExpiresAt returns the absolute expiry.
func (r *Record) ExpiresAt() time.Time {
	return time.UnixMilli(r.ExpiresAtMs)
}

// Remaining returns expiresAt - now. It is negative once the record expired.
func (r *Record) Remaining(now time.Time) time.Duration {
	return time.Duration(r.ExpiresAtMs-now.UnixMilli()) * time.Millisecond
}

// Expired reports whether less than one millisecond remains.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAtMs-now.UnixMilli() < 1
}

// WarningSeconds is the whole number of seconds shown in the expiry
// countdown: the ceiling of the remaining time, never below zero.
func (r *Record) WarningSeconds(now time.Time) int {
	return CeilSeconds(r.Remaining(now))
}

// Renew slides the expiry to now + window. A renewal never moves the expiry
// backwards, so a tab with a lagging clock cannot shorten another tab's
// renewal. It reports whether the expiry changed.
func (r *Record) Renew(now time.Time) bool {
	next := now.UnixMilli() + r.SessionWindowMs
	if next <= r.ExpiresAtMs {
		return false
	}
	r.ExpiresAtMs = next
	return true
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.PermissionList != nil {
		out.PermissionList = append([]string(nil), r.PermissionList...)
	}
	return &out
}

// CeilSeconds rounds d up to whole seconds, clamped at zero.
func CeilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
