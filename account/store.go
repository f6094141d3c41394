package account

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrAccountNotFound is returned when no account matches the username.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateAccount is returned by Create when the username is taken.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrStorageUnavailable wraps every backend failure, timeouts included.
	ErrStorageUnavailable = errors.New("account storage unavailable")
	// ErrInvalidAccount is returned when a record fails structural validation.
	ErrInvalidAccount = errors.New("invalid account")
)

// Store is the persistence collaborator for account records.
//
// Save persists the credential hash and roles only. Lock state is changed
// exclusively through ConditionalUpdateLockState so concurrent failed logins
// are never lost to a blind overwrite.
type Store interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	Create(ctx context.Context, acct *Account) error
	Save(ctx context.Context, acct *Account) error
	// ConditionalUpdateLockState writes next only when the stored state still
	// matches expected (see LockState.Matches). It reports false, nil when the
	// record changed underneath the caller.
	ConditionalUpdateLockState(ctx context.Context, username string, expected, next LockState) (bool, error)
}

func validate(acct *Account) error {
	if acct == nil {
		return ErrInvalidAccount
	}
	if strings.TrimSpace(acct.Username) == "" {
		return errors.Join(ErrInvalidAccount, errors.New("empty username"))
	}
	if acct.CredentialHash == "" {
		return errors.Join(ErrInvalidAccount, errors.New("empty credential hash"))
	}
	if len(acct.Roles) == 0 {
		return errors.Join(ErrInvalidAccount, errors.New("account requires at least one role"))
	}
	for _, r := range acct.Roles {
		if strings.Contains(r, ",") {
			return errors.Join(ErrInvalidAccount, errors.New("role names must not contain commas"))
		}
	}
	if acct.FailedAttempts < 0 {
		return errors.Join(ErrInvalidAccount, errors.New("negative failed attempts"))
	}
	return validateLockState(acct.LockState)
}

func validateLockState(s LockState) error {
	if s.FailedAttempts < 0 {
		return errors.Join(ErrInvalidAccount, errors.New("negative failed attempts"))
	}
	if s.Locked != (s.LockedAt != nil) {
		return errors.Join(ErrInvalidAccount, errors.New("lockedAt must be set exactly when locked"))
	}
	return nil
}
