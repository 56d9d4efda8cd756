package token

import (
	"context"
	"time"
)

// Repo persists sealed token sets and the refresh token denylist.
// GetTokenSet and UpdateTokenSet return errors.ErrInvalidSession when no set
// is bound to the session.
type Repo interface {
	GetTokenSet(ctx context.Context, sessionID string) (Set, error)
	UpdateTokenSet(ctx context.Context, set Set) error
	IsDenylisted(ctx context.Context, hash string, now time.Time) (bool, error)
}
