package account

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb, "test"), mr
}

func alice() *Account {
	return &Account{
		ID:             "a-1",
		Username:       "alice",
		CredentialHash: "$argon2id$stub",
		Roles:          []string{"USER"},
	}
}

func TestRedisStoreCreateAndFind(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, alice()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, alice()); !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}

	got, err := store.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != "a-1" || got.CredentialHash != "$argon2id$stub" {
		t.Fatalf("unexpected account %+v", got)
	}
	if len(got.Roles) != 1 || got.Roles[0] != "USER" {
		t.Fatalf("unexpected roles %v", got.Roles)
	}
	if got.Locked || got.FailedAttempts != 0 || got.LockedAt != nil {
		t.Fatalf("expected fresh lock state, got %+v", got.LockState)
	}

	if _, err := store.FindByUsername(ctx, "nobody"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestRedisStoreConditionalUpdate(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, alice()); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := store.ConditionalUpdateLockState(ctx, "alice", LockState{}, LockState{FailedAttempts: 1})
	if err != nil || !ok {
		t.Fatalf("expected first update to apply, ok=%v err=%v", ok, err)
	}

	// stale expectation
	ok, err = store.ConditionalUpdateLockState(ctx, "alice", LockState{}, LockState{FailedAttempts: 1})
	if err != nil {
		t.Fatalf("stale update: %v", err)
	}
	if ok {
		t.Fatal("expected stale update to be rejected")
	}

	at := time.Unix(1700000000, 0).UTC()
	ok, err = store.ConditionalUpdateLockState(ctx, "alice",
		LockState{FailedAttempts: 1},
		LockState{Locked: true, FailedAttempts: 2, LockedAt: &at},
	)
	if err != nil || !ok {
		t.Fatalf("lock update: ok=%v err=%v", ok, err)
	}

	got, err := store.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.Locked || got.FailedAttempts != 2 || got.LockedAt == nil || !got.LockedAt.Equal(at) {
		t.Fatalf("unexpected lock state %+v", got.LockState)
	}

	if _, err := store.ConditionalUpdateLockState(ctx, "ghost", LockState{}, LockState{FailedAttempts: 1}); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestRedisStoreConditionalUpdateComparesLockedAt(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, alice()); err != nil {
		t.Fatalf("create: %v", err)
	}

	first := time.Unix(1700000000, 0).UTC()
	second := first.Add(time.Hour)
	steps := []struct{ expected, next LockState }{
		{LockState{}, LockState{Locked: true, FailedAttempts: 5, LockedAt: &first}},
		{LockState{Locked: true, FailedAttempts: 5, LockedAt: &first}, LockState{}},
		{LockState{}, LockState{Locked: true, FailedAttempts: 5, LockedAt: &second}},
	}
	for i, step := range steps {
		ok, err := store.ConditionalUpdateLockState(ctx, "alice", step.expected, step.next)
		if err != nil || !ok {
			t.Fatalf("step %d: ok=%v err=%v", i, ok, err)
		}
	}

	// same flags and counter as the current record but an older lock
	ok, err := store.ConditionalUpdateLockState(ctx, "alice",
		LockState{Locked: true, FailedAttempts: 5, LockedAt: &first},
		LockState{},
	)
	if err != nil {
		t.Fatalf("stale lock update: %v", err)
	}
	if ok {
		t.Fatal("expected update against an earlier lock to be rejected")
	}

	got, err := store.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.Locked || got.LockedAt == nil || !got.LockedAt.Equal(second) {
		t.Fatalf("unexpected lock state %+v", got.LockState)
	}
}

func TestRedisStoreRejectsInconsistentLockState(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, alice()); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := store.ConditionalUpdateLockState(ctx, "alice", LockState{}, LockState{Locked: true, FailedAttempts: 5})
	if !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("expected ErrInvalidAccount for locked state without lockedAt, got %v", err)
	}
}

func TestRedisStoreSaveKeepsLockState(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, alice()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.ConditionalUpdateLockState(ctx, "alice", LockState{}, LockState{FailedAttempts: 3}); err != nil {
		t.Fatalf("cas: %v", err)
	}

	updated := alice()
	updated.CredentialHash = "$argon2id$rehashed"
	updated.Roles = []string{"MODERATOR", "USER"}
	if err := store.Save(ctx, updated); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.CredentialHash != "$argon2id$rehashed" || len(got.Roles) != 2 {
		t.Fatalf("save did not persist profile fields: %+v", got)
	}
	if got.FailedAttempts != 3 {
		t.Fatalf("save must not touch failed attempts, got %d", got.FailedAttempts)
	}

	ghost := alice()
	ghost.Username = "ghost"
	if err := store.Save(ctx, ghost); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestRedisStoreConcurrentIncrementsAreNotLost(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, alice()); err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for {
				cur, err := store.FindByUsername(ctx, "alice")
				if err != nil {
					errs <- err
					return
				}
				next := cur.LockState
				next.FailedAttempts++
				ok, err := store.ConditionalUpdateLockState(ctx, "alice", cur.LockState, next)
				if err != nil {
					errs <- err
					return
				}
				if ok {
					return
				}
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("worker error: %v", err)
	}

	got, err := store.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.FailedAttempts != workers {
		t.Fatalf("expected %d failed attempts, got %d", workers, got.FailedAttempts)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	if _, err := store.FindByUsername(context.Background(), "alice"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}
