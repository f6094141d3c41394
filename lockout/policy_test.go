package lockout

import (
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/tokenauth/account"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func lockedAt(at time.Time, failed int) account.LockState {
	return account.LockState{Locked: true, FailedAttempts: failed, LockedAt: &at}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(0, time.Hour); err == nil {
		t.Fatal("expected zero threshold to be rejected")
	}
	if _, err := New(5, 0); err == nil {
		t.Fatal("expected zero duration to be rejected")
	}
	p, err := New(3, time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if p.Threshold != 3 || p.Duration != time.Minute {
		t.Fatalf("unexpected policy %+v", p)
	}
}

func TestFailedAttemptsLockAtThreshold(t *testing.T) {
	p := Default()
	s := account.LockState{}

	for i := 1; i < DefaultThreshold; i++ {
		s = p.OnFailedAttempt(s, t0)
		if s.Locked || s.LockedAt != nil {
			t.Fatalf("locked too early after %d failures", i)
		}
		if s.FailedAttempts != i {
			t.Fatalf("expected %d failures, got %d", i, s.FailedAttempts)
		}
	}

	s = p.OnFailedAttempt(s, t0)
	if !s.Locked || s.LockedAt == nil || !s.LockedAt.Equal(t0) {
		t.Fatalf("expected lock at threshold, got %+v", s)
	}
	if s.FailedAttempts != DefaultThreshold {
		t.Fatalf("expected %d failures, got %d", DefaultThreshold, s.FailedAttempts)
	}
}

func TestFailedAttemptWhileLockedKeepsLockTime(t *testing.T) {
	p := Default()
	s := lockedAt(t0, 5)

	next := p.OnFailedAttempt(s, t0.Add(time.Hour))
	if !next.Locked || !next.LockedAt.Equal(t0) {
		t.Fatalf("lock time must not move, got %+v", next)
	}
	if next.FailedAttempts != 6 {
		t.Fatalf("expected 6 failures, got %d", next.FailedAttempts)
	}
}

func TestIsLockedBoundary(t *testing.T) {
	p := Default()
	s := lockedAt(t0, 5)

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"at lock time", t0, true},
		{"one nanosecond before expiry", t0.Add(DefaultDuration - time.Nanosecond), true},
		{"exactly at expiry", t0.Add(DefaultDuration), false},
		{"after expiry", t0.Add(DefaultDuration + time.Second), false},
	}
	for _, tc := range cases {
		if got := p.IsLocked(s, tc.now); got != tc.want {
			t.Fatalf("%s: IsLocked=%v want %v", tc.name, got, tc.want)
		}
	}

	if p.IsLocked(account.LockState{FailedAttempts: 4}, t0) {
		t.Fatal("unlocked state reported locked")
	}
}

func TestSuccessfulAttemptResetsCounter(t *testing.T) {
	p := Default()
	next, err := p.OnSuccessfulAttempt(account.LockState{FailedAttempts: 3}, t0)
	if err != nil {
		t.Fatalf("success: %v", err)
	}
	if next.Locked || next.FailedAttempts != 0 || next.LockedAt != nil {
		t.Fatalf("expected reset state, got %+v", next)
	}
}

func TestSuccessfulAttemptInsideWindowIsInvariantViolation(t *testing.T) {
	p := Default()
	s := lockedAt(t0, 5)

	next, err := p.OnSuccessfulAttempt(s, t0.Add(time.Hour))
	if !errors.Is(err, ErrLockInvariant) {
		t.Fatalf("expected ErrLockInvariant, got %v", err)
	}
	if !next.Locked || next.FailedAttempts != 5 {
		t.Fatalf("state must be unchanged on violation, got %+v", next)
	}
}

func TestSuccessfulAttemptAfterWindowUnlocks(t *testing.T) {
	p := Default()
	s := lockedAt(t0, 5)

	next, err := p.OnSuccessfulAttempt(s, t0.Add(DefaultDuration+time.Second))
	if err != nil {
		t.Fatalf("success: %v", err)
	}
	if next.Locked || next.FailedAttempts != 0 || next.LockedAt != nil {
		t.Fatalf("expected unlocked reset state, got %+v", next)
	}
}

func TestNormalizeAutoUnlocks(t *testing.T) {
	p := Default()

	expired := p.Normalize(lockedAt(t0, 5), t0.Add(DefaultDuration))
	if expired.Locked || expired.FailedAttempts != 0 || expired.LockedAt != nil {
		t.Fatalf("expected auto-unlock, got %+v", expired)
	}

	active := p.Normalize(lockedAt(t0, 5), t0.Add(time.Minute))
	if !active.Locked || active.FailedAttempts != 5 {
		t.Fatalf("active lock must survive normalize, got %+v", active)
	}

	stamped := p.Normalize(account.LockState{Locked: true, FailedAttempts: 5}, t0)
	if stamped.LockedAt == nil || !stamped.LockedAt.Equal(t0) {
		t.Fatalf("expected missing lock time to be stamped, got %+v", stamped)
	}

	stray := p.Normalize(account.LockState{FailedAttempts: 2, LockedAt: &t0}, t0)
	if stray.LockedAt != nil || stray.FailedAttempts != 2 {
		t.Fatalf("expected stray lock time dropped, got %+v", stray)
	}
}

func TestFailedAttemptAfterExpiredLockStartsOver(t *testing.T) {
	p := Default()
	next := p.OnFailedAttempt(lockedAt(t0, 5), t0.Add(DefaultDuration+time.Minute))
	if next.Locked || next.FailedAttempts != 1 {
		t.Fatalf("expected fresh count after expired lock, got %+v", next)
	}
}

func TestUnlockClearsEverything(t *testing.T) {
	p := Default()
	next := p.Unlock(lockedAt(t0, 7))
	if next.Locked || next.FailedAttempts != 0 || next.LockedAt != nil {
		t.Fatalf("expected cleared state, got %+v", next)
	}
}

func TestOnFailedAttemptDoesNotAliasInput(t *testing.T) {
	p := Policy{Threshold: 10, Duration: time.Hour}
	s := lockedAt(t0, 10)
	next := p.OnFailedAttempt(s, t0)
	*next.LockedAt = next.LockedAt.Add(time.Hour)
	if !s.LockedAt.Equal(t0) {
		t.Fatal("OnFailedAttempt returned a LockedAt aliasing its input")
	}
}
