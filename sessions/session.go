package sessions

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const idLength = 32

// Session binds an opaque server-issued id to a provider identity. It is
// created by a successful callback and deleted by logout or expiry.
type Session struct {
	ID             string
	ProviderUserID string
	DeviceInfo     string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// NewID returns a new random session id.
func NewID() (string, error) {
	b := make([]byte, idLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("[sessions NewID] failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
