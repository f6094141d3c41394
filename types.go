package tokenauth

import "time"

// Role names used by the bundled server. The engine itself accepts any
// comma-free role name.
const (
	RoleUser       = "USER"
	RoleModerator  = "MODERATOR"
	RoleSuperAdmin = "SUPER_ADMIN"
)

// TokenPair is the result of a successful Login or Refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AccountInfo is the read-only view returned by Register.
type AccountInfo struct {
	ID       string
	Username string
	Roles    []string
}
