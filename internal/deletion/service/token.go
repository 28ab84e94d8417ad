package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// newToken returns a 256-bit random token as 64 hex characters.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// partialToken is the only form of a token that ever reaches the audit log.
func partialToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}

// fingerprint ties a request to the client that made it without storing the
// raw session identifier alongside the request.
func fingerprint(userID uuid.UUID, ip, userAgent, sessionID string, at time.Time) string {
	data := fmt.Sprintf("%s_%s_%s_%s_%d", userID, ip, userAgent, sessionID, at.UnixMilli())
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
