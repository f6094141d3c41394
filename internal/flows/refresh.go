package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tokenauth/account"
	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/refresh"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureVerify
	RefreshFailureWrongKind
	RefreshFailureNotValid
	RefreshFailureAccountMissing
	RefreshFailureReplay
	RefreshFailureStorage
	RefreshFailureIssue
)

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	Subject string
	TokenID string
	Pair    IssuedPair
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Now         func() time.Time
	Verify      func(string) (*jwt.Token, error)
	TokenID     func(string) string
	IsValid     func(context.Context, string, time.Time) (bool, error)
	FindAccount func(context.Context, string) (*account.Account, error)
	Issue       func(subject string, roles []string) (IssuedPair, error)
	// Rotate revokes oldID and records next atomically.
	Rotate func(ctx context.Context, oldID, owner string, next *jwt.Token, now time.Time) error
}

// RunRefresh verifies a presented refresh token, checks it against the store
// and rotates it. At most one concurrent caller per token can win Rotate.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	tok, err := deps.Verify(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureVerify, Err: err}
	}
	if tok.Kind != jwt.KindRefresh {
		return RefreshResult{Failure: RefreshFailureWrongKind, Subject: tok.Subject}
	}

	now := deps.Now()
	id := deps.TokenID(refreshToken)

	ok, err := deps.IsValid(ctx, id, now)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStorage, Err: err, Subject: tok.Subject, TokenID: id}
	}
	if !ok {
		return RefreshResult{Failure: RefreshFailureNotValid, Subject: tok.Subject, TokenID: id}
	}

	acct, err := deps.FindAccount(ctx, tok.Subject)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return RefreshResult{Failure: RefreshFailureAccountMissing, Err: err, Subject: tok.Subject, TokenID: id}
		}
		return RefreshResult{Failure: RefreshFailureStorage, Err: err, Subject: tok.Subject, TokenID: id}
	}

	pair, err := deps.Issue(acct.Username, acct.Roles)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, Subject: tok.Subject, TokenID: id}
	}

	if err := deps.Rotate(ctx, id, tok.Subject, pair.Refresh, now); err != nil {
		if refresh.IsRejection(err) {
			return RefreshResult{Failure: RefreshFailureReplay, Err: err, Subject: tok.Subject, TokenID: id}
		}
		if errors.Is(err, refresh.ErrStorageUnavailable) {
			return RefreshResult{Failure: RefreshFailureStorage, Err: err, Subject: tok.Subject, TokenID: id}
		}
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, Subject: tok.Subject, TokenID: id}
	}

	return RefreshResult{Failure: RefreshFailureNone, Subject: tok.Subject, TokenID: id, Pair: pair}
}
