package flows

import (
	"errors"
	"strings"

	"github.com/MrEthical07/tokenauth/jwt"
)

// AuthenticateFailureKind classifies why a bearer token did not produce an
// identity. Every kind other than None degrades to anonymous.
type AuthenticateFailureKind int

const (
	AuthenticateFailureNone AuthenticateFailureKind = iota
	AuthenticateFailureMissing
	AuthenticateFailureInvalid
	AuthenticateFailureExpired
	AuthenticateFailureWrongKind
)

// AuthenticateResult returns either the verified access token or a failure.
type AuthenticateResult struct {
	Failure AuthenticateFailureKind
	Err     error
	Token   *jwt.Token
}

// AuthenticateDeps captures stateless validation dependencies.
type AuthenticateDeps struct {
	Verify func(string) (*jwt.Token, error)
}

// RunAuthenticate verifies an access token without touching storage.
func RunAuthenticate(raw string, deps AuthenticateDeps) AuthenticateResult {
	if strings.TrimSpace(raw) == "" {
		return AuthenticateResult{Failure: AuthenticateFailureMissing}
	}

	tok, err := deps.Verify(raw)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AuthenticateResult{Failure: AuthenticateFailureExpired, Err: err}
		}
		return AuthenticateResult{Failure: AuthenticateFailureInvalid, Err: err}
	}
	if tok.Kind != jwt.KindAccess {
		return AuthenticateResult{Failure: AuthenticateFailureWrongKind}
	}
	return AuthenticateResult{Failure: AuthenticateFailureNone, Token: tok}
}
