package lockout

import (
	"errors"
	"time"

	"github.com/MrEthical07/tokenauth/account"
)

const (
	// DefaultThreshold is the number of consecutive failures that locks an account.
	DefaultThreshold = 5
	// DefaultDuration is how long a lock holds before the account auto-unlocks.
	DefaultDuration = 24 * time.Hour
)

// ErrLockInvariant is returned when a successful attempt is applied to an
// account that is still inside its lock window. Callers must gate credential
// checks on IsLocked, so observing this means a caller bug.
var ErrLockInvariant = errors.New("successful attempt on locked account")

// Policy is the lockout state machine. It performs no I/O; every method maps
// a snapshot and a clock reading to the next snapshot.
type Policy struct {
	Threshold int
	Duration  time.Duration
}

// Default returns the policy with threshold 5 and a 24h lock.
func Default() Policy {
	return Policy{Threshold: DefaultThreshold, Duration: DefaultDuration}
}

// New validates and returns a Policy.
func New(threshold int, duration time.Duration) (Policy, error) {
	p := Policy{Threshold: threshold, Duration: duration}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate reports configuration errors.
func (p Policy) Validate() error {
	if p.Threshold < 1 {
		return errors.New("lockout threshold must be >= 1")
	}
	if p.Duration <= 0 {
		return errors.New("lockout duration must be > 0")
	}
	return nil
}

// IsLocked reports whether s is locked at now. The lock expires exactly at
// LockedAt+Duration.
func (p Policy) IsLocked(s account.LockState, now time.Time) bool {
	if !s.Locked {
		return false
	}
	if s.LockedAt == nil {
		// A locked record without a timestamp cannot be aged out.
		return true
	}
	return now.Before(s.LockedAt.Add(p.Duration))
}

// UnlocksAt returns the instant the current lock ends.
func (p Policy) UnlocksAt(s account.LockState) (time.Time, bool) {
	if !s.Locked || s.LockedAt == nil {
		return time.Time{}, false
	}
	return s.LockedAt.Add(p.Duration), true
}

// Normalize applies the lazy auto-unlock: a lock whose window has elapsed is
// cleared with the counter reset. It also repairs a locked state missing its
// timestamp by stamping now, and drops a stray timestamp on an unlocked state.
func (p Policy) Normalize(s account.LockState, now time.Time) account.LockState {
	switch {
	case s.Locked && s.LockedAt == nil:
		at := now
		return account.LockState{Locked: true, FailedAttempts: s.FailedAttempts, LockedAt: &at}
	case s.Locked && !p.IsLocked(s, now):
		return account.LockState{}
	case !s.Locked && s.LockedAt != nil:
		return account.LockState{FailedAttempts: s.FailedAttempts}
	}
	return cloneState(s)
}

// OnFailedAttempt counts one failure. Reaching Threshold locks the account at now.
// An account already inside its lock window keeps its original LockedAt.
func (p Policy) OnFailedAttempt(s account.LockState, now time.Time) account.LockState {
	next := p.Normalize(s, now)
	next.FailedAttempts++
	if !next.Locked && next.FailedAttempts >= p.Threshold {
		at := now
		next.Locked = true
		next.LockedAt = &at
	}
	return next
}

// OnSuccessfulAttempt resets the counter and clears an elapsed lock. It
// returns ErrLockInvariant when s is still locked at now.
func (p Policy) OnSuccessfulAttempt(s account.LockState, now time.Time) (account.LockState, error) {
	if p.IsLocked(s, now) {
		return cloneState(s), ErrLockInvariant
	}
	return account.LockState{}, nil
}

// Unlock is the administrative transition. It ignores the lock window.
func (p Policy) Unlock(account.LockState) account.LockState {
	return account.LockState{}
}

func cloneState(s account.LockState) account.LockState {
	if s.LockedAt != nil {
		at := *s.LockedAt
		s.LockedAt = &at
	}
	return s
}
