package selection

import (
	"context"
	"time"
)

// Repo stores the playlist ids a session has selected. Every mutation is
// atomic and returns errors.ErrInvalidSession if the session no longer exists.
// ListSelection returns ids in ascending order.
type Repo interface {
	ReplaceSelection(ctx context.Context, sessionID string, playlistIDs []string, now time.Time) error
	AddSelection(ctx context.Context, sessionID string, playlistIDs []string, now time.Time) (int64, error)
	RemoveSelection(ctx context.Context, sessionID string, playlistIDs []string) (int64, error)
	ClearSelection(ctx context.Context, sessionID string) error
	ListSelection(ctx context.Context, sessionID string) ([]string, error)
}
