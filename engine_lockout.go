package tokenauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenauth/account"
	"github.com/sirupsen/logrus"
)

var errLockContention = errors.New("lock state kept changing underneath the update")

// lockUpdate is one persisted lock-state transition.
type lockUpdate struct {
	Before account.LockState
	After  account.LockState
	At     time.Time
}

func (u lockUpdate) newlyLocked() bool {
	return u.After.Locked && !u.Before.Locked
}

// applyLockTransition reads the stored lock state, computes the next state
// and writes it with a conditional update. A lost race reloads and
// recomputes, up to Store.MaxCASAttempts times, so no concurrent failure is
// ever overwritten.
func (e *Engine) applyLockTransition(
	ctx context.Context,
	username string,
	transition func(account.LockState, time.Time) (account.LockState, error),
) (lockUpdate, error) {
	for attempt := 0; attempt < e.config.Store.MaxCASAttempts; attempt++ {
		acct, err := e.findAccount(ctx, username)
		if err != nil {
			return lockUpdate{}, err
		}

		// storage timestamps keep microseconds, so a reload compares equal
		now := e.now().Truncate(time.Microsecond)
		current := acct.LockState
		next, err := transition(current, now)
		if err != nil {
			return lockUpdate{Before: current, After: current, At: now}, err
		}

		upd := lockUpdate{Before: e.policy.Normalize(current, now), After: next, At: now}
		if current.Matches(next) {
			return upd, nil
		}

		applied, err := e.conditionalUpdate(ctx, username, current, next)
		if err != nil {
			return lockUpdate{}, err
		}
		if applied {
			return upd, nil
		}

		e.metricInc(MetricLockConflict)
		e.log.WithFields(logrus.Fields{
			"username": username,
			"attempt":  attempt + 1,
		}).Debug("tokenauth: lock state changed concurrently, retrying")
	}

	return lockUpdate{}, storageUnavailable(errLockContention)
}

// findAccount loads an account, retrying once on a storage failure. Not
// found and validation errors pass through unchanged.
func (e *Engine) findAccount(ctx context.Context, username string) (*account.Account, error) {
	var acct *account.Account
	err := e.retryStore(ctx, func(sctx context.Context) error {
		var err error
		acct, err = e.accounts.FindByUsername(sctx, username)
		return err
	})
	return acct, err
}

// conditionalUpdate writes next when the stored state still matches current.
// A storage error leaves the outcome unknown, so the record is reloaded
// before anything is written again: a stored state equal to next counts as
// applied, an unchanged state is retried once and anything else surfaces
// ErrStorageUnavailable rather than being recomputed.
func (e *Engine) conditionalUpdate(ctx context.Context, username string, current, next account.LockState) (bool, error) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var applied bool
		sctx, cancel := e.storeContext(ctx)
		applied, err = e.accounts.ConditionalUpdateLockState(sctx, username, current, next)
		cancel()
		if err == nil || !errors.Is(err, account.ErrStorageUnavailable) {
			return applied, err
		}
		if ctx.Err() != nil {
			break
		}

		acct, ferr := e.findAccount(ctx, username)
		if ferr != nil {
			return false, ferr
		}
		if acct.LockState.Matches(next) {
			e.log.WithField("username", username).Debug("tokenauth: lock state update landed despite storage error")
			return true, nil
		}
		if !acct.LockState.Matches(current) {
			break
		}
	}
	return false, storageUnavailable(err)
}

// retryStore runs call once more when it reports account storage
// unavailability, then gives up with ErrStorageUnavailable.
func (e *Engine) retryStore(ctx context.Context, call func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		sctx, cancel := e.storeContext(ctx)
		err = call(sctx)
		cancel()
		if err == nil || !errors.Is(err, account.ErrStorageUnavailable) {
			return err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return storageUnavailable(err)
}

func (e *Engine) recordFailure(ctx context.Context, username string) (account.LockState, error) {
	upd, err := e.applyLockTransition(ctx, username, func(s account.LockState, now time.Time) (account.LockState, error) {
		return e.policy.OnFailedAttempt(s, now), nil
	})
	if err != nil {
		return account.LockState{}, err
	}

	if upd.newlyLocked() {
		e.metricInc(MetricAccountLocked)
		unlocksAt, _ := e.policy.UnlocksAt(upd.After)
		e.emitAudit(ctx, auditEventAccountLocked, true, username, "", nil, func() map[string]string {
			return map[string]string{
				"failed_attempts": fmt.Sprint(upd.After.FailedAttempts),
				"unlocks_at":      unlocksAt.UTC().Format(time.RFC3339),
			}
		})
		e.logger(ctx).WithFields(logrus.Fields{
			"username":        username,
			"failed_attempts": upd.After.FailedAttempts,
			"unlocks_at":      unlocksAt.UTC(),
		}).Warn("tokenauth: account locked")
	}
	return upd.After, nil
}

func (e *Engine) recordSuccess(ctx context.Context, username string) (account.LockState, error) {
	upd, err := e.applyLockTransition(ctx, username, e.policy.OnSuccessfulAttempt)
	if err != nil {
		return upd.After, err
	}
	return upd.After, nil
}

// Unlock clears the lock and the failure counter regardless of the lock
// window. It returns ErrAccountNotFound for an unknown username.
func (e *Engine) Unlock(ctx context.Context, username string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	upd, err := e.applyLockTransition(ctx, username, func(s account.LockState, _ time.Time) (account.LockState, error) {
		return e.policy.Unlock(s), nil
	})
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		if errors.Is(err, ErrStorageUnavailable) {
			return e.storageFailure(ctx, auditEventAccountUnlocked, username, "", err)
		}
		return err
	}

	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, auditEventAccountUnlocked, true, username, "", nil, func() map[string]string {
		return map[string]string{"previous_failed_attempts": fmt.Sprint(upd.Before.FailedAttempts)}
	})
	e.logger(ctx).WithField("username", username).Info("tokenauth: account unlocked")
	return nil
}
