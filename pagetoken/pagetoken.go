// Package pagetoken issues the opaque continuation tokens handed to clients
// for paginated provider listings.
package pagetoken

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
)

const defaultTTL = 24 * time.Hour

// Cursor is the position a token points at.
type Cursor struct {
	ProviderUserID string
	Resource       string
	Offset         int
}

type claims struct {
	Resource string `json:"res"`
	Offset   int    `json:"off"`
	jwt.RegisteredClaims
}

// Codec signs and verifies page tokens with HMAC-SHA256. A token is bound to
// the provider identity and the resource it was issued for.
//
// Tokens are stateless: nothing records a redemption, so a token decodes
// any number of times until its TTL runs out. Replaying one only re-reads
// the same cached page.
type Codec struct {
	secret  []byte
	ttl     time.Duration
	nowTime func() time.Time
}

// CodecOption defines a function type to modify the Codec instance.
type CodecOption func(*Codec)

// WithTTL sets how long an issued token stays valid.
func WithTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		c.ttl = ttl
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowTime = nowFunc
	}
}

func NewCodec(secret []byte, options ...CodecOption) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("[NewCodec] secret is required")
	}
	c := &Codec{
		secret:  secret,
		ttl:     defaultTTL,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// NewRandomCodec creates a codec with an ephemeral secret. Tokens it issued
// stop validating after a restart.
func NewRandomCodec(options ...CodecOption) (*Codec, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("[pagetoken NewRandomCodec] failed to read random bytes: %w", err)
	}
	return NewCodec(secret, options...)
}

// Encode issues a token for cursor.
func (c *Codec) Encode(cursor Cursor) (string, error) {
	now := c.nowTime()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Resource: cursor.Resource,
		Offset:   cursor.Offset,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cursor.ProviderUserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", errors.Wrapf(errors.ErrInternal, "signing page token: %v", err)
	}
	return signed, nil
}

// Decode verifies a token and checks that it was issued to providerUserID
// for resource. Any failure is errors.ErrInvalidPageToken.
func (c *Codec) Decode(tokenString, providerUserID, resource string) (Cursor, error) {
	var cl claims
	_, err := jwt.ParseWithClaims(tokenString, &cl, c.verificationKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.nowTime),
		jwt.WithExpirationRequired(),
		jwt.WithSubject(providerUserID),
	)
	if err != nil {
		return Cursor{}, errors.Wrapf(errors.ErrInvalidPageToken, "%v", err)
	}
	if cl.Resource != resource {
		return Cursor{}, errors.Wrapf(errors.ErrInvalidPageToken, "token issued for %q", cl.Resource)
	}
	if cl.Offset < 0 {
		return Cursor{}, errors.Wrapf(errors.ErrInvalidPageToken, "negative offset")
	}
	return Cursor{ProviderUserID: cl.Subject, Resource: cl.Resource, Offset: cl.Offset}, nil
}

func (c *Codec) verificationKey(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return c.secret, nil
}
