package internaldefs

import (
	"github.com/MrEthical07/tokenauth"
)

// CounterDef defines a public type used by tokenauth APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   tokenauth.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by tokenauth APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   tokenauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in output order.
var CounterDefs = []CounterDef{
	{ID: tokenauth.MetricLoginSuccess, Name: "tokenauth_login_success_total", Help: "Logins that issued a token pair."},
	{ID: tokenauth.MetricLoginFailure, Name: "tokenauth_login_failure_total", Help: "Logins rejected for invalid credentials."},
	{ID: tokenauth.MetricLoginLocked, Name: "tokenauth_login_locked_total", Help: "Logins rejected because the account was locked."},
	{ID: tokenauth.MetricAccountLocked, Name: "tokenauth_account_locked_total", Help: "Accounts that crossed the failure threshold."},
	{ID: tokenauth.MetricAccountUnlocked, Name: "tokenauth_account_unlocked_total", Help: "Administrative unlocks."},
	{ID: tokenauth.MetricRefreshSuccess, Name: "tokenauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: tokenauth.MetricRefreshFailure, Name: "tokenauth_refresh_failure_total", Help: "Refresh attempts with an invalid token."},
	{ID: tokenauth.MetricRefreshReplay, Name: "tokenauth_refresh_replay_total", Help: "Refresh attempts that lost rotation to another caller."},
	{ID: tokenauth.MetricLogout, Name: "tokenauth_logout_total", Help: "Refresh tokens revoked by logout."},
	{ID: tokenauth.MetricLogoutError, Name: "tokenauth_logout_error_total", Help: "Logouts whose revoke failed on storage."},
	{ID: tokenauth.MetricAuthenticateSuccess, Name: "tokenauth_authenticate_success_total", Help: "Requests authenticated with an access token."},
	{ID: tokenauth.MetricAuthenticateAnonymous, Name: "tokenauth_authenticate_anonymous_total", Help: "Requests that fell back to the anonymous identity."},
	{ID: tokenauth.MetricAccountCreated, Name: "tokenauth_account_created_total", Help: "Registered accounts."},
	{ID: tokenauth.MetricAccountCreationDuplicate, Name: "tokenauth_account_creation_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: tokenauth.MetricPasswordRehashed, Name: "tokenauth_password_rehashed_total", Help: "Credential hashes upgraded after login."},
	{ID: tokenauth.MetricStorageUnavailable, Name: "tokenauth_storage_unavailable_total", Help: "Operations failed by an unavailable store."},
	{ID: tokenauth.MetricLockConflict, Name: "tokenauth_lock_conflict_total", Help: "Conditional lock-state updates that lost a race and retried."},
	{ID: tokenauth.MetricRefreshSwept, Name: "tokenauth_refresh_swept_total", Help: "Expired refresh records removed by sweeps."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: tokenauth.MetricAuthenticateLatency, Name: "tokenauth_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// AuditDroppedName is the counter for audit events dropped under backpressure.
const AuditDroppedName = "tokenauth_audit_dropped_total"

// HistogramBounds is an exported constant or variable used by the authentication engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramUpperBounds are HistogramBounds in seconds without the implicit +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix is an exported constant or variable used by the authentication engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
