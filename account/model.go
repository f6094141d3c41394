package account

import (
	"slices"
	"strings"
	"time"
)

// LockState is the brute-force lockout portion of an account record.
//
// LockedAt is set if and only if Locked is true.
type LockState struct {
	Locked         bool
	FailedAttempts int
	LockedAt       *time.Time
}

// Matches reports whether two states agree on every field compared by a
// conditional update. LockedAt is part of the comparison so a record that was
// locked, unlocked and locked again is not mistaken for the original lock.
func (s LockState) Matches(other LockState) bool {
	if s.Locked != other.Locked || s.FailedAttempts != other.FailedAttempts {
		return false
	}
	switch {
	case s.LockedAt == nil && other.LockedAt == nil:
		return true
	case s.LockedAt == nil || other.LockedAt == nil:
		return false
	}
	return s.LockedAt.Equal(*other.LockedAt)
}

// Account is the identity record consulted at login.
type Account struct {
	ID             string
	Username       string
	CredentialHash string
	Roles          []string
	LockState
}

// Clone returns a deep copy so callers never share a mutable record.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.Roles = slices.Clone(a.Roles)
	if a.LockedAt != nil {
		at := *a.LockedAt
		out.LockedAt = &at
	}
	return &out
}

// NormalizeRoles trims, de-duplicates and sorts role names. Empty names are dropped.
func NormalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" || slices.Contains(out, r) {
			continue
		}
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}
