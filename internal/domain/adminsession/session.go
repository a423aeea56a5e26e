package adminsession

import (
	"strconv"
	"time"
)

// Persisted keys of the admin session and fetch throttle.
const (
	KeyAuth      = "adminAuth"
	KeyAuthTime  = "adminAuthTime"
	KeyLastFetch = "lastAdminFetch"
)

// AuthenticatedValue is the sentinel stored under KeyAuth.
const AuthenticatedValue = "authenticated"

// Lifetime is how long a session stays valid after login.
const Lifetime = 24 * time.Hour

// MinFetchInterval is the minimum gap between two registration fetches.
const MinFetchInterval = 500 * time.Millisecond

// Session is the admin login state held per client.
// INVARIANT: Since is zero when Authenticated is false
type Session struct {
	Authenticated bool
	Since         time.Time
}

// New returns an authenticated session started at now.
func New(now time.Time) Session {
	return Session{Authenticated: true, Since: now}
}

// Valid reports whether the session is authenticated and younger than Lifetime at now.
// PRE: none
// POST: false for sessions created at or before now - Lifetime
func (s Session) Valid(now time.Time) bool {
	if !s.Authenticated {
		return false
	}
	return now.Sub(s.Since) < Lifetime
}

// Expired reports whether an authenticated session has outlived Lifetime.
func (s Session) Expired(now time.Time) bool {
	return s.Authenticated && !s.Valid(now)
}

// Encode returns the values stored under KeyAuth and KeyAuthTime.
func (s Session) Encode() (auth, since string) {
	if !s.Authenticated {
		return "", ""
	}
	return AuthenticatedValue, FormatMillis(s.Since)
}

// Decode rebuilds a session from stored values. A missing or
// malformed timestamp yields an unauthenticated session.
func Decode(auth, since string) Session {
	if auth != AuthenticatedValue {
		return Session{}
	}
	t, ok := ParseMillis(since)
	if !ok {
		return Session{}
	}
	return Session{Authenticated: true, Since: t}
}

// FormatMillis encodes t as epoch milliseconds.
func FormatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// ParseMillis decodes epoch milliseconds.
func ParseMillis(s string) (time.Time, bool) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// FetchAllowed reports whether a fetch at now respects MinFetchInterval since last.
// A zero last always allows.
func FetchAllowed(last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= MinFetchInterval
}
