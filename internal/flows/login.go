package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tokenauth/account"
	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/lockout"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureUserNotFound
	LoginFailureLocked
	LoginFailureBadPassword
	LoginFailureStorage
	LoginFailureIssue
)

// IssuedPair is a freshly signed access/refresh pair.
type IssuedPair struct {
	Access  *jwt.Token
	Refresh *jwt.Token
}

// LoginResult carries either the issued pair or failure metadata. State is the
// lock state persisted by the attempt, when one was persisted.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	Account *account.Account
	State   account.LockState
	Pair    IssuedPair
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	Now    func() time.Time
	Policy lockout.Policy

	FindAccount    func(context.Context, string) (*account.Account, error)
	VerifyPassword func(password, hash string) (bool, error)
	// DummyVerify burns the same work as a real verification for unknown users.
	DummyVerify func(password string)

	// RecordFailure and RecordSuccess apply the lockout transition atomically
	// against the store of record and return the persisted state.
	RecordFailure func(context.Context, string) (account.LockState, error)
	RecordSuccess func(context.Context, string) (account.LockState, error)

	Issue         func(subject string, roles []string) (IssuedPair, error)
	RecordRefresh func(context.Context, *jwt.Token) error
}

// RunLogin executes the credential check and lockout state machine:
// load, lock gate, verify, persist transition, issue.
func RunLogin(ctx context.Context, username, password string, deps LoginDeps) LoginResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.DummyVerify == nil {
		deps.DummyVerify = func(string) {}
	}

	acct, err := deps.FindAccount(ctx, username)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			deps.DummyVerify(password)
			return LoginResult{Failure: LoginFailureUserNotFound, Err: err}
		}
		return LoginResult{Failure: LoginFailureStorage, Err: err}
	}

	if deps.Policy.IsLocked(acct.LockState, deps.Now()) {
		return LoginResult{Failure: LoginFailureLocked, Account: acct, State: acct.LockState}
	}

	ok, verifyErr := deps.VerifyPassword(password, acct.CredentialHash)
	if verifyErr != nil || !ok {
		state, err := deps.RecordFailure(ctx, username)
		if err != nil {
			if errors.Is(err, account.ErrAccountNotFound) {
				return LoginResult{Failure: LoginFailureUserNotFound, Err: err, Account: acct}
			}
			return LoginResult{Failure: LoginFailureStorage, Err: err, Account: acct}
		}
		return LoginResult{Failure: LoginFailureBadPassword, Err: verifyErr, Account: acct, State: state}
	}

	state, err := deps.RecordSuccess(ctx, username)
	if err != nil {
		switch {
		case errors.Is(err, lockout.ErrLockInvariant):
			// locked by concurrent failures after the gate above
			return LoginResult{Failure: LoginFailureLocked, Err: err, Account: acct}
		case errors.Is(err, account.ErrAccountNotFound):
			return LoginResult{Failure: LoginFailureUserNotFound, Err: err, Account: acct}
		default:
			return LoginResult{Failure: LoginFailureStorage, Err: err, Account: acct}
		}
	}

	pair, err := deps.Issue(acct.Username, acct.Roles)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, Account: acct, State: state}
	}
	if err := deps.RecordRefresh(ctx, pair.Refresh); err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, Account: acct, State: state}
	}

	return LoginResult{Failure: LoginFailureNone, Account: acct, State: state, Pair: pair}
}
