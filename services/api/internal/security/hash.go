package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken is the lookup key stored for a refresh token. The raw token
// never reaches the database.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
