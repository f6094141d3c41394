package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/tokenauth/account"
)

// RegisterFailureKind classifies registration failures for root-level mapping.
type RegisterFailureKind int

const (
	RegisterFailureNone RegisterFailureKind = iota
	RegisterFailureInvalidInput
	RegisterFailureHash
	RegisterFailureDuplicate
	RegisterFailureStorage
)

// RegisterRequest is the input to RunRegister.
type RegisterRequest struct {
	Username string
	Password string
	Roles    []string
}

// RegisterResult carries the created account or failure metadata.
type RegisterResult struct {
	Failure RegisterFailureKind
	Err     error
	Account *account.Account
}

// RegisterDeps captures registration dependencies.
type RegisterDeps struct {
	DefaultRole  string
	HashPassword func(string) (string, error)
	NewID        func() string
	Create       func(context.Context, *account.Account) error
}

// RunRegister creates an unlocked account with zero failed attempts.
func RunRegister(ctx context.Context, req RegisterRequest, deps RegisterDeps) RegisterResult {
	username := strings.TrimSpace(req.Username)
	if username == "" || username != req.Username {
		return RegisterResult{Failure: RegisterFailureInvalidInput, Err: errors.New("username must be non-empty without surrounding spaces")}
	}

	roles := account.NormalizeRoles(req.Roles)
	if len(roles) == 0 && deps.DefaultRole != "" {
		roles = []string{deps.DefaultRole}
	}

	hash, err := deps.HashPassword(req.Password)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureHash, Err: err}
	}

	acct := &account.Account{
		ID:             deps.NewID(),
		Username:       username,
		CredentialHash: hash,
		Roles:          roles,
	}
	if err := deps.Create(ctx, acct); err != nil {
		switch {
		case errors.Is(err, account.ErrDuplicateAccount):
			return RegisterResult{Failure: RegisterFailureDuplicate, Err: err}
		case errors.Is(err, account.ErrInvalidAccount):
			return RegisterResult{Failure: RegisterFailureInvalidInput, Err: err}
		default:
			return RegisterResult{Failure: RegisterFailureStorage, Err: err}
		}
	}
	return RegisterResult{Failure: RegisterFailureNone, Account: acct}
}
