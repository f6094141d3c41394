package tokenauth

import (
	"fmt"
	"time"
)

// LintWarning is a configuration choice that validates but deserves a
// second look before production.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult is the list returned by Config.Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports risky but valid settings. It never fails; call Validate for
// hard errors.
func (c Config) Lint() LintResult {
	var ws LintResult
	add := func(code, format string, args ...any) {
		ws = append(ws, LintWarning{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if c.JWT.AccessTTL > 15*time.Minute {
		add("access_ttl_long", "access tokens live %s; they cannot be revoked before expiry", c.JWT.AccessTTL)
	}
	if c.JWT.RefreshTTL > 30*24*time.Hour {
		add("refresh_ttl_long", "refresh tokens live %s", c.JWT.RefreshTTL)
	}
	if c.JWT.Issuer == "" {
		add("issuer_unset", "tokens carry no iss claim; tokens from another service sharing the key would verify")
	}
	if c.Lockout.Threshold > 10 {
		add("lockout_threshold_high", "accounts lock only after %d failures", c.Lockout.Threshold)
	}
	if c.Lockout.Duration > 0 && c.Lockout.Duration < 15*time.Minute {
		add("lockout_duration_short", "lock window of %s allows fast guessing", c.Lockout.Duration)
	}
	if c.Store.OperationTimeout == 0 {
		add("store_timeout_unset", "store calls inherit only the caller deadline")
	}
	if c.Password.Memory < 64*1024 {
		add("argon2_memory_low", "argon2id memory %d KB is below 64 MiB", c.Password.Memory)
	}
	if !c.Password.UpgradeOnLogin {
		add("rehash_disabled", "weak or legacy hashes are never upgraded")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "authentication events are not audited")
	}

	return ws
}
