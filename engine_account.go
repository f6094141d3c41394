package tokenauth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MrEthical07/tokenauth/internal/flows"
	"github.com/MrEthical07/tokenauth/password"
)

// Register describes the register operation and its observable behavior.
//
// Register creates an unlocked account with zero failed attempts. When roles
// is empty the configured default role is assigned. It returns
// ErrUsernameTaken for an existing username and ErrInvalidRegistration for a
// blank username, a role name containing a comma or a password outside the
// accepted length.
func (e *Engine) Register(ctx context.Context, username, pw string, roles []string) (AccountInfo, error) {
	if !e.ready() {
		return AccountInfo{}, ErrEngineNotReady
	}
	for _, r := range roles {
		if strings.Contains(r, ",") {
			e.emitAudit(ctx, auditEventAccountCreateError, false, username, "", ErrInvalidRegistration, reason("role_invalid"))
			return AccountInfo{}, ErrInvalidRegistration
		}
	}

	res := e.flows.Register(ctx, flows.RegisterRequest{
		Username: username,
		Password: pw,
		Roles:    roles,
	})
	log := e.logger(ctx).WithField("username", username)

	switch res.Failure {
	case flows.RegisterFailureNone:
	case flows.RegisterFailureInvalidInput:
		e.emitAudit(ctx, auditEventAccountCreateError, false, username, "", ErrInvalidRegistration, reason("invalid_input"))
		return AccountInfo{}, errors.Join(ErrInvalidRegistration, res.Err)
	case flows.RegisterFailureHash:
		if errors.Is(res.Err, password.ErrPasswordLength) {
			e.emitAudit(ctx, auditEventAccountCreateError, false, username, "", ErrInvalidRegistration, reason("password_length"))
			return AccountInfo{}, errors.Join(ErrInvalidRegistration, res.Err)
		}
		log.WithError(res.Err).Error("tokenauth: password hashing failed")
		e.emitAudit(ctx, auditEventAccountCreateError, false, username, "", res.Err, reason("hash"))
		return AccountInfo{}, fmt.Errorf("tokenauth: hash password: %w", res.Err)
	case flows.RegisterFailureDuplicate:
		e.metricInc(MetricAccountCreationDuplicate)
		e.emitAudit(ctx, auditEventAccountDuplicate, false, username, "", ErrUsernameTaken, nil)
		log.Info("tokenauth: registration rejected, username taken")
		return AccountInfo{}, ErrUsernameTaken
	default:
		return AccountInfo{}, e.storageFailure(ctx, auditEventAccountCreateError, username, "", res.Err)
	}

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, auditEventAccountCreated, true, res.Account.Username, "", nil, func() map[string]string {
		return map[string]string{"roles": strings.Join(res.Account.Roles, ",")}
	})
	log.WithField("roles", res.Account.Roles).Info("tokenauth: account created")

	return AccountInfo{
		ID:       res.Account.ID,
		Username: res.Account.Username,
		Roles:    slices.Clone(res.Account.Roles),
	}, nil
}
