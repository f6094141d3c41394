package refresh

import (
	"crypto/sha256"
	"encoding/hex"
)

// TokenID derives the storage key for a signed refresh token.
func TokenID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ShortID is a log-safe prefix of a token id.
func ShortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
