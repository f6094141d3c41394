package tokenauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tokenauth/refresh"
)

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventLoginLocked        = "login_locked"
	auditEventAccountLocked      = "account_locked"
	auditEventAccountUnlocked    = "account_unlocked"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventRefreshReplay      = "refresh_replay"
	auditEventLogout             = "logout"
	auditEventAccountCreated     = "account_created"
	auditEventAccountDuplicate   = "account_creation_duplicate"
	auditEventAccountCreateError = "account_creation_failure"
	auditEventPasswordRehashed   = "password_rehashed"
	auditEventRefreshSweep       = "refresh_sweep"
)

// AuditErrorCode is the coarse error classification recorded in audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenNotFound      AuditErrorCode = "token_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Subject:   subject,
		TokenID:   refresh.ShortID(tokenID),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func reason(r string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"reason": r}
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrInvalidRefreshToken):
		return auditErrInvalidToken
	case errors.Is(err, refresh.ErrTokenNotFound):
		return auditErrTokenNotFound
	case errors.Is(err, ErrUsernameTaken):
		return auditErrDuplicate
	case errors.Is(err, ErrStorageUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func sinceMillis(start time.Time, now time.Time) int64 {
	return now.Sub(start).Milliseconds()
}
