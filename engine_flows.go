package tokenauth

import (
	"context"
	"time"

	"github.com/MrEthical07/tokenauth/account"
	"github.com/MrEthical07/tokenauth/internal/flows"
	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/refresh"
	"github.com/google/uuid"
)

func (e *Engine) initFlowDeps() {
	e.flows = flows.New(flows.Deps{
		Login: flows.LoginDeps{
			Now:            e.now,
			Policy:         e.policy,
			FindAccount:    e.findAccount,
			VerifyPassword: e.hasher.Verify,
			DummyVerify: func(password string) {
				_, _ = e.hasher.Verify(password, e.dummyHash)
			},
			RecordFailure: e.recordFailure,
			RecordSuccess: e.recordSuccess,
			Issue:         e.issuePair,
			RecordRefresh: e.recordRefresh,
		},
		Refresh: flows.RefreshDeps{
			Now:         e.now,
			Verify:      e.codec.Verify,
			TokenID:     refresh.TokenID,
			IsValid:     e.refreshIsValid,
			FindAccount: e.findAccount,
			Issue:       e.issuePair,
			Rotate:      e.rotateRefresh,
		},
		Logout: flows.LogoutDeps{
			Verify:  e.codec.Verify,
			TokenID: refresh.TokenID,
			Revoke:  e.revokeRefresh,
		},
		Authenticate: flows.AuthenticateDeps{
			Verify: e.codec.Verify,
		},
		Register: flows.RegisterDeps{
			DefaultRole:  e.config.Account.DefaultRole,
			HashPassword: e.hasher.Hash,
			NewID:        uuid.NewString,
			Create:       e.createAccount,
		},
	})
}

func (e *Engine) issuePair(subject string, roles []string) (flows.IssuedPair, error) {
	access, err := e.codec.Issue(subject, roles, jwt.KindAccess, e.config.JWT.AccessTTL)
	if err != nil {
		return flows.IssuedPair{}, err
	}
	rt, err := e.codec.Issue(subject, nil, jwt.KindRefresh, e.config.JWT.RefreshTTL)
	if err != nil {
		return flows.IssuedPair{}, err
	}
	return flows.IssuedPair{Access: access, Refresh: rt}, nil
}

func (e *Engine) recordRefresh(ctx context.Context, tok *jwt.Token) error {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.tokens.Record(ctx, refresh.TokenID(tok.Raw), tok.Subject, tok.ExpiresAt)
}

func (e *Engine) refreshIsValid(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.tokens.IsValid(ctx, tokenID, now)
}

func (e *Engine) rotateRefresh(ctx context.Context, oldID, owner string, next *jwt.Token, now time.Time) error {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.tokens.Rotate(ctx, oldID, owner, refresh.Record{
		TokenID:   refresh.TokenID(next.Raw),
		Owner:     next.Subject,
		ExpiresAt: next.ExpiresAt,
	}, now)
}

func (e *Engine) revokeRefresh(ctx context.Context, tokenID string) error {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.tokens.Revoke(ctx, tokenID)
}

func (e *Engine) createAccount(ctx context.Context, acct *account.Account) error {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.accounts.Create(ctx, acct)
}
