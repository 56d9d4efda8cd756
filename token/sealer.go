package token

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "v1."

// Sealer encrypts provider tokens before they reach storage using
// XChaCha20-Poly1305. The session id is bound as associated data so a sealed
// value cannot be replayed under another session.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a sealer from a 32 byte key.
func NewSealer(key []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("[token NewSealer] invalid key: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// NewSealerFromBase64 decodes a standard base64 key and creates a sealer.
func NewSealerFromBase64(encoded string) (*Sealer, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("[token NewSealerFromBase64] key is not base64: %w", err)
	}
	return NewSealer(key)
}

// NewRandomSealer creates a sealer with an ephemeral key. Tokens sealed by it
// do not survive a restart.
func NewRandomSealer() (*Sealer, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("[token NewRandomSealer] failed to read random bytes: %w", err)
	}
	return NewSealer(key)
}

// Seal encrypts plaintext. The empty string seals to the empty string.
func (s *Sealer) Seal(plaintext, associatedData string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("[Sealer Seal] failed to read nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(associatedData))
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed, associatedData string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return "", fmt.Errorf("[Sealer Open] unknown sealed format")
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("[Sealer Open] malformed sealed value: %w", err)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", fmt.Errorf("[Sealer Open] sealed value too short")
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(associatedData))
	if err != nil {
		return "", fmt.Errorf("[Sealer Open] failed to open: %w", err)
	}
	return string(plaintext), nil
}

// SealSet returns a copy of set with both tokens sealed.
func (s *Sealer) SealSet(set Set) (Set, error) {
	var err error
	if set.AccessToken, err = s.Seal(set.AccessToken, set.SessionID); err != nil {
		return Set{}, err
	}
	if set.RefreshToken, err = s.Seal(set.RefreshToken, set.SessionID); err != nil {
		return Set{}, err
	}
	return set, nil
}

// OpenSet returns a copy of set with both tokens opened.
func (s *Sealer) OpenSet(set Set) (Set, error) {
	var err error
	if set.AccessToken, err = s.Open(set.AccessToken, set.SessionID); err != nil {
		return Set{}, err
	}
	if set.RefreshToken, err = s.Open(set.RefreshToken, set.SessionID); err != nil {
		return Set{}, err
	}
	return set, nil
}
