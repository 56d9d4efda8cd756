package token

import (
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// Set is the provider credential bundle bound one-to-one to a session.
type Set struct {
	SessionID    string
	AccessToken  string
	RefreshToken string
	Scope        string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// NeedsRefresh reports whether the access token expires within threshold of now.
func (s Set) NeedsRefresh(now time.Time, threshold time.Duration) bool {
	return !now.Add(threshold).Before(s.ExpiresAt)
}

// Denylisted records a refresh token hash that must never be redeemed again.
type Denylisted struct {
	Hash      string
	Reason    string
	AddedAt   time.Time
	ExpiresAt time.Time
}

// HashRefreshToken returns the base64 encoded SHA-256 of a refresh token.
// Only the hash is ever persisted in the denylist.
func HashRefreshToken(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return base64.StdEncoding.EncodeToString(sum[:])
}
