// Package providercache keeps provider pages shared by every session of the
// same provider identity, and records which sessions read which pages.
package providercache

import (
	"context"
	"fmt"
	"time"
)

// Page is one cached provider page.
type Page struct {
	ProviderUserID string
	Key            string
	Payload        []byte
	UpdatedAt      time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the page is stale at now.
func (p Page) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Cache stores page content. GetPage returns errors.ErrNotFound when the page
// is absent or expired. PutPage overwrites any previous content for the same
// (ProviderUserID, Key).
type Cache interface {
	GetPage(ctx context.Context, providerUserID, key string, now time.Time) (Page, error)
	PutPage(ctx context.Context, page Page) error
}

// Link records that a session has read a cached page.
type Link struct {
	SessionID      string
	ProviderUserID string
	PageKey        string
	LinkedAt       time.Time
}

// Linker stores links. LinkSession is idempotent and keeps the first LinkedAt.
// Links are removed by the logout transaction.
type Linker interface {
	LinkSession(ctx context.Context, link Link) error
	SessionLinks(ctx context.Context, sessionID string) ([]Link, error)
}

// PlaylistsKey is the page key of a playlist listing page at offset.
// The first page is offset 0.
func PlaylistsKey(offset int) string {
	return fmt.Sprintf("playlists:%d", offset)
}

// TracksKey is the page key of a playlist's track listing at offset.
func TracksKey(playlistID string, offset int) string {
	return fmt.Sprintf("tracks:%s:%d", playlistID, offset)
}
