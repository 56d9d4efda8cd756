package sessions

import "context"

// Repo reads sessions. Creation and deletion happen in the auth and logout
// transactions so they stay atomic with the tokens they carry.
type Repo interface {
	// GetSession returns errors.ErrInvalidSession when the id is unknown.
	GetSession(ctx context.Context, sessionID string) (Session, error)
}
