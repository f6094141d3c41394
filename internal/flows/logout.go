package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/refresh"
)

// LogoutOutcome describes what a logout attempt did. Logout never fails from
// the caller's point of view; the outcome only feeds logs, audit and metrics.
type LogoutOutcome int

const (
	LogoutRevoked LogoutOutcome = iota
	LogoutUnparseable
	LogoutWrongKind
	LogoutNotFound
	LogoutStorageError
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Verify  func(string) (*jwt.Token, error)
	TokenID func(string) string
	Revoke  func(context.Context, string) error
}

// LogoutResult reports the outcome of RunLogout.
type LogoutResult struct {
	Outcome LogoutOutcome
	Subject string
	TokenID string
	Err     error
}

// RunLogout revokes the presented refresh token. Expired tokens are still
// revoked so an unswept record cannot outlive a logout.
func RunLogout(ctx context.Context, refreshToken string, deps LogoutDeps) LogoutResult {
	tok, err := deps.Verify(refreshToken)
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return LogoutResult{Outcome: LogoutUnparseable, Err: err}
	}
	if tok == nil {
		return LogoutResult{Outcome: LogoutUnparseable, Err: err}
	}
	if tok.Kind != jwt.KindRefresh {
		return LogoutResult{Outcome: LogoutWrongKind, Subject: tok.Subject}
	}

	id := deps.TokenID(refreshToken)
	if err := deps.Revoke(ctx, id); err != nil {
		if errors.Is(err, refresh.ErrTokenNotFound) {
			return LogoutResult{Outcome: LogoutNotFound, Subject: tok.Subject, TokenID: id, Err: err}
		}
		return LogoutResult{Outcome: LogoutStorageError, Subject: tok.Subject, TokenID: id, Err: err}
	}
	return LogoutResult{Outcome: LogoutRevoked, Subject: tok.Subject, TokenID: id}
}
