package auth

import (
	"context"

	"github.com/jrsteele09/go-playlist-gateway/pkce"
	"github.com/jrsteele09/go-playlist-gateway/sessions"
	"github.com/jrsteele09/go-playlist-gateway/token"
)

// Repo holds the PKCE entries plus the two multi-row transitions of the
// session lifecycle. Each transition is a single atomic unit: either every
// row change happens or none does.
type Repo interface {
	pkce.Repo

	// CompleteAuth consumes the PKCE entry for state and creates the session
	// with its sealed token set. It fails with errors.ErrUnknownOrExpiredState
	// if the entry was already consumed, leaving nothing behind.
	CompleteAuth(ctx context.Context, state string, session sessions.Session, tokens token.Set) error

	// Logout deletes the session, its token set, selection and cache links,
	// and denylists the refresh token hash. It fails with
	// errors.ErrInvalidSession if the session does not exist. Shared cache
	// content is not touched. A zero denied.Hash skips the denylist write.
	Logout(ctx context.Context, sessionID string, denied token.Denylisted) error
}
