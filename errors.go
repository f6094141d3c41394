package tokenauth

import (
	"errors"

	"github.com/MrEthical07/tokenauth/lockout"
)

var (
	// ErrInvalidCredentials is returned for an unknown username or a wrong
	// password. The two are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while the account is inside its lock window.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidRefreshToken covers malformed, expired, revoked, wrong-kind and
	// unknown refresh tokens.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrStorageUnavailable is returned when a store could not complete an
	// operation. It is joined with the store-level cause.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUsernameTaken is returned by Register for an existing username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidRegistration is returned by Register for unusable input.
	ErrInvalidRegistration = errors.New("invalid registration request")
	// ErrAccountNotFound is returned by administrative operations on a missing account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrLockInvariant is re-exported from the lockout package.
	ErrLockInvariant = lockout.ErrLockInvariant
)

func storageUnavailable(cause error) error {
	if cause == nil {
		return ErrStorageUnavailable
	}
	return errors.Join(ErrStorageUnavailable, cause)
}
