// Package pkce holds the short-lived state that ties an authorization
// request to its callback.
package pkce

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

const stateLength = 32

// Entry is the server side half of a PKCE authorization request. It is
// created when the flow starts and consumed exactly once by the callback.
type Entry struct {
	State        string
	CodeVerifier string
	Scopes       []string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the entry can no longer be redeemed at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Challenge is the S256 code challenge sent to the authorization server.
func (e Entry) Challenge() string {
	return oauth2.S256ChallengeFromVerifier(e.CodeVerifier)
}

// NewEntry builds an entry with a fresh state and code verifier.
func NewEntry(scopes []string, now time.Time, ttl time.Duration) (Entry, error) {
	state, err := NewState()
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		State:        state,
		CodeVerifier: oauth2.GenerateVerifier(),
		Scopes:       append([]string(nil), scopes...),
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}, nil
}

// NewState returns 32 random bytes encoded as unpadded base64url.
func NewState() (string, error) {
	b := make([]byte, stateLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("[pkce NewState] failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
