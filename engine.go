package tokenauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenauth/account"
	"github.com/MrEthical07/tokenauth/internal/flows"
	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/lockout"
	"github.com/MrEthical07/tokenauth/password"
	"github.com/MrEthical07/tokenauth/refresh"
	"github.com/sirupsen/logrus"
)

// Engine defines a public type used by tokenauth APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config    Config
	accounts  account.Store
	tokens    refresh.Store
	hasher    password.Hasher
	codec     *jwt.Codec
	policy    lockout.Policy
	log       logrus.FieldLogger
	audit     *auditDispatcher
	metrics   *Metrics
	now       func() time.Time
	dummyHash string
	flows     flows.Service
}

// Close drains pending audit events. The stores are owned by the caller and
// stay open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.codec != nil && e.flows.Initialized()
}

func (e *Engine) logger(ctx context.Context) logrus.FieldLogger {
	if ip := clientIPFromContext(ctx); ip != "" {
		return e.log.WithField("client_ip", ip)
	}
	return e.log
}

// Login checks username and password against the account store and returns a
// fresh token pair.
//
// Unknown usernames and wrong passwords both return ErrInvalidCredentials. An
// account inside its lock window returns ErrAccountLocked without the
// password being checked. Every wrong password is persisted to the failure
// counter before ErrInvalidCredentials is returned; when that write cannot be
// made the result is ErrStorageUnavailable. The attempt that reaches the
// threshold still returns ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, username, password string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	log := e.logger(ctx).WithField("username", username)

	res := e.flows.Login(ctx, username, password)
	switch res.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureUserNotFound:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, username, "", ErrInvalidCredentials, reason("user_not_found"))
		log.WithField("reason", "user_not_found").Info("tokenauth: login rejected")
		return TokenPair{}, ErrInvalidCredentials
	case flows.LoginFailureLocked:
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, username, "", ErrAccountLocked, e.lockMetadata(res.Account))
		log.WithField("reason", "locked").Info("tokenauth: login rejected")
		return TokenPair{}, ErrAccountLocked
	case flows.LoginFailureBadPassword:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, username, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason":          "password_mismatch",
				"failed_attempts": fmt.Sprint(res.State.FailedAttempts),
			}
		})
		log.WithFields(logrus.Fields{
			"reason":          "password_mismatch",
			"failed_attempts": res.State.FailedAttempts,
		}).Info("tokenauth: login rejected")
		return TokenPair{}, ErrInvalidCredentials
	case flows.LoginFailureStorage:
		return TokenPair{}, e.storageFailure(ctx, auditEventLoginFailure, username, "", res.Err)
	default:
		if errors.Is(res.Err, refresh.ErrStorageUnavailable) {
			return TokenPair{}, e.storageFailure(ctx, auditEventLoginFailure, username, "", res.Err)
		}
		log.WithError(res.Err).Error("tokenauth: token issuance failed")
		e.emitAudit(ctx, auditEventLoginFailure, false, username, "", res.Err, reason("issue"))
		return TokenPair{}, fmt.Errorf("tokenauth: issue tokens: %w", res.Err)
	}

	if e.config.Password.UpgradeOnLogin {
		e.rehash(ctx, res.Account, password)
	}
	password = ""

	e.metricInc(MetricLoginSuccess)
	refreshID := refresh.TokenID(res.Pair.Refresh.Raw)
	e.emitAudit(ctx, auditEventLoginSuccess, true, username, refreshID, nil, nil)
	log.WithField("token_id", refresh.ShortID(refreshID)).Info("tokenauth: login succeeded")

	return pairFromIssued(res.Pair), nil
}

// rehash upgrades a legacy or weak credential hash. It is best-effort and
// never fails a login.
func (e *Engine) rehash(ctx context.Context, acct *account.Account, password string) {
	if acct == nil {
		return
	}
	needs, err := e.hasher.NeedsRehash(acct.CredentialHash)
	if err != nil || !needs {
		return
	}
	log := e.logger(ctx).WithField("username", acct.Username)

	upgraded, err := e.hasher.Hash(password)
	if err != nil {
		log.WithError(err).Warn("tokenauth: password hash upgrade generation failed")
		return
	}
	next := acct.Clone()
	next.CredentialHash = upgraded

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	if err := e.accounts.Save(sctx, next); err != nil {
		log.WithError(err).Warn("tokenauth: password hash upgrade update failed")
		return
	}
	e.metricInc(MetricPasswordRehashed)
	e.emitAudit(ctx, auditEventPasswordRehashed, true, acct.Username, "", nil, nil)
}

// Refresh exchanges a refresh token for a new pair and revokes the presented
// token. Of several concurrent calls with the same token at most one
// succeeds; the rest get ErrInvalidRefreshToken.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}

	res := e.flows.Refresh(ctx, refreshToken)
	log := e.logger(ctx).WithFields(logrus.Fields{
		"username": res.Subject,
		"token_id": refresh.ShortID(res.TokenID),
	})

	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.Subject, res.TokenID, nil, nil)
		log.Debug("tokenauth: refresh token rotated")
		return pairFromIssued(res.Pair), nil
	case flows.RefreshFailureReplay:
		e.metricInc(MetricRefreshReplay)
		e.emitAudit(ctx, auditEventRefreshReplay, false, res.Subject, res.TokenID, ErrInvalidRefreshToken, reason(rotationReason(res.Err)))
		log.WithField("reason", rotationReason(res.Err)).Warn("tokenauth: refresh rotation rejected")
		return TokenPair{}, ErrInvalidRefreshToken
	case flows.RefreshFailureStorage:
		return TokenPair{}, e.storageFailure(ctx, auditEventRefreshInvalid, res.Subject, res.TokenID, res.Err)
	case flows.RefreshFailureIssue:
		log.WithError(res.Err).Error("tokenauth: token issuance failed")
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.Subject, res.TokenID, res.Err, reason("issue"))
		return TokenPair{}, fmt.Errorf("tokenauth: issue tokens: %w", res.Err)
	}

	why := refreshFailureReason(res.Failure, res.Err)
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, res.Subject, res.TokenID, ErrInvalidRefreshToken, reason(why))
	log.WithField("reason", why).Info("tokenauth: refresh rejected")
	return TokenPair{}, ErrInvalidRefreshToken
}

// Logout revokes the presented refresh token. It always returns nil:
// unparseable tokens, unknown tokens and storage failures are logged and
// swallowed, and logging out twice is harmless.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return nil
	}

	res := e.flows.Logout(ctx, refreshToken)
	log := e.logger(ctx).WithFields(logrus.Fields{
		"username": res.Subject,
		"token_id": refresh.ShortID(res.TokenID),
	})

	switch res.Outcome {
	case flows.LogoutRevoked:
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogout, true, res.Subject, res.TokenID, nil, nil)
		log.Debug("tokenauth: refresh token revoked")
	case flows.LogoutUnparseable:
		log.Debug("tokenauth: logout ignored unparseable token")
	case flows.LogoutWrongKind:
		log.Debug("tokenauth: logout ignored non-refresh token")
	case flows.LogoutNotFound:
		log.Debug("tokenauth: logout token not recorded")
	case flows.LogoutStorageError:
		e.metricInc(MetricLogoutError)
		e.emitAudit(ctx, auditEventLogout, false, res.Subject, res.TokenID, storageUnavailable(res.Err), nil)
		log.WithError(res.Err).Warn("tokenauth: logout revoke failed")
	}
	return nil
}

// Authenticate verifies an access token without consulting storage. It
// reports false for missing, malformed, expired and refresh tokens.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (Identity, bool) {
	if !e.ready() {
		return Anonymous(), false
	}
	start := e.now()
	res := e.flows.Authenticate(accessToken)
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricAuthenticateLatency, e.now().Sub(start))
	}

	if res.Failure != flows.AuthenticateFailureNone {
		e.metricInc(MetricAuthenticateAnonymous)
		if res.Failure != flows.AuthenticateFailureMissing {
			e.logger(ctx).WithField("reason", authenticateFailureReason(res.Failure)).Debug("tokenauth: request is anonymous")
		}
		return Anonymous(), false
	}

	e.metricInc(MetricAuthenticateSuccess)
	return Identity{Subject: res.Token.Subject, Roles: res.Token.Roles}, true
}

// SweepExpired deletes refresh records whose expiry has passed.
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	start := e.now()

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	n, err := e.tokens.SweepExpired(sctx, start)
	if err != nil {
		return 0, e.storageFailure(ctx, auditEventRefreshSweep, "", "", err)
	}

	if e.metrics != nil && n > 0 {
		e.metrics.Add(MetricRefreshSwept, uint64(n))
	}
	e.emitAudit(ctx, auditEventRefreshSweep, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"removed":     fmt.Sprint(n),
			"duration_ms": fmt.Sprint(sinceMillis(start, e.now())),
		}
	})
	e.log.WithField("removed", n).Debug("tokenauth: swept expired refresh tokens")
	return n, nil
}

// storeContext bounds a single store call by Store.OperationTimeout.
func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.Store.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.Store.OperationTimeout)
}

func (e *Engine) storageFailure(ctx context.Context, event, subject, tokenID string, cause error) error {
	err := cause
	if !errors.Is(err, ErrStorageUnavailable) {
		err = storageUnavailable(cause)
	}
	e.metricInc(MetricStorageUnavailable)
	e.emitAudit(ctx, event, false, subject, tokenID, err, reason("storage"))
	e.logger(ctx).WithFields(logrus.Fields{
		"username": subject,
		"token_id": refresh.ShortID(tokenID),
	}).WithError(cause).Error("tokenauth: storage unavailable")
	return err
}

func (e *Engine) lockMetadata(acct *account.Account) func() map[string]string {
	return func() map[string]string {
		md := map[string]string{"reason": "locked"}
		if acct == nil {
			return md
		}
		if at, ok := e.policy.UnlocksAt(acct.LockState); ok {
			md["unlocks_at"] = at.UTC().Format(time.RFC3339)
		}
		return md
	}
}

func pairFromIssued(p flows.IssuedPair) TokenPair {
	return TokenPair{
		AccessToken:      p.Access.Raw,
		RefreshToken:     p.Refresh.Raw,
		AccessExpiresAt:  p.Access.ExpiresAt,
		RefreshExpiresAt: p.Refresh.ExpiresAt,
	}
}

func rotationReason(err error) string {
	switch {
	case errors.Is(err, refresh.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, refresh.ErrTokenExpired):
		return "expired"
	case errors.Is(err, refresh.ErrOwnerMismatch):
		return "owner_mismatch"
	case errors.Is(err, refresh.ErrTokenNotFound):
		return "not_found"
	}
	return "rejected"
}

func refreshFailureReason(kind flows.RefreshFailureKind, err error) string {
	switch kind {
	case flows.RefreshFailureVerify:
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "expired"
		}
		return "invalid"
	case flows.RefreshFailureWrongKind:
		return "wrong_kind"
	case flows.RefreshFailureNotValid:
		return "not_valid"
	case flows.RefreshFailureAccountMissing:
		return "account_missing"
	}
	return "unknown"
}

func authenticateFailureReason(kind flows.AuthenticateFailureKind) string {
	switch kind {
	case flows.AuthenticateFailureExpired:
		return "expired"
	case flows.AuthenticateFailureWrongKind:
		return "wrong_kind"
	case flows.AuthenticateFailureInvalid:
		return "invalid"
	}
	return "missing"
}
