package pkce

import "context"

// Repo stores PKCE entries keyed by state. Get and Take return
// errors.ErrUnknownOrExpiredState when the state is not stored.
type Repo interface {
	SavePKCE(ctx context.Context, entry Entry) error
	GetPKCE(ctx context.Context, state string) (Entry, error)
	// TakePKCE deletes the entry and returns it in one step.
	TakePKCE(ctx context.Context, state string) (Entry, error)
}
