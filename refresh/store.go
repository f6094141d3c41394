package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateToken means a record with the same id already exists. Token
	// ids carry a random jti, so this indicates a programming error.
	ErrDuplicateToken = errors.New("refresh token already recorded")
	// ErrTokenNotFound is returned when no record exists for the id.
	ErrTokenNotFound = errors.New("refresh token not found")
	// ErrTokenRevoked is returned by Rotate when the old token was already used or logged out.
	ErrTokenRevoked = errors.New("refresh token revoked")
	// ErrTokenExpired is returned by Rotate when the old record has expired.
	ErrTokenExpired = errors.New("refresh token expired")
	// ErrOwnerMismatch is returned by Rotate when the record belongs to another subject.
	ErrOwnerMismatch = errors.New("refresh token owner mismatch")
	// ErrStorageUnavailable wraps every backend failure, timeouts included.
	ErrStorageUnavailable = errors.New("refresh token storage unavailable")
)

// Record is one issued refresh credential.
type Record struct {
	TokenID   string
	Owner     string
	ExpiresAt time.Time
	Revoked   bool
}

// Store is the refresh-token persistence collaborator.
type Store interface {
	// Record persists a new non-revoked record.
	Record(ctx context.Context, tokenID, owner string, expiresAt time.Time) error
	// IsValid is true iff the record exists, is not revoked and expires after now.
	IsValid(ctx context.Context, tokenID string, now time.Time) (bool, error)
	// Revoke marks the record revoked. Revoking twice succeeds.
	Revoke(ctx context.Context, tokenID string) error
	// Rotate revokes oldID and records next in one atomic step. Exactly one of
	// several concurrent callers for the same oldID succeeds.
	Rotate(ctx context.Context, oldID, owner string, next Record, now time.Time) error
	// SweepExpired deletes records with expiresAt <= now and reports how many
	// were removed.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// IsRejection reports whether err is a rotation refusal caused by the token
// itself rather than by the backend.
func IsRejection(err error) bool {
	return errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrOwnerMismatch)
}

func validateRecord(tokenID, owner string, expiresAt time.Time) error {
	if tokenID == "" {
		return errors.New("refresh token id required")
	}
	if owner == "" {
		return errors.New("refresh token owner required")
	}
	if expiresAt.IsZero() {
		return errors.New("refresh token expiry required")
	}
	return nil
}
