package session

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// TokenID derives the session id for an opaque bearer token.
//
// Lowercase hex SHA-256, matching how the issuing system keys session rows.
func TokenID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeToken(token string) string {
	return strings.TrimSpace(token)
}
