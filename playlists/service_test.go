package playlists_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
	"github.com/jrsteele09/go-playlist-gateway/pagetoken"
	"github.com/jrsteele09/go-playlist-gateway/pkce"
	"github.com/jrsteele09/go-playlist-gateway/playlists"
	"github.com/jrsteele09/go-playlist-gateway/provider"
	"github.com/jrsteele09/go-playlist-gateway/providercache"
	"github.com/jrsteele09/go-playlist-gateway/sessions"
	"github.com/jrsteele09/go-playlist-gateway/store/memory"
	"github.com/jrsteele09/go-playlist-gateway/token"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeTokens struct{}

func (fakeTokens) EnsureFresh(_ context.Context, sessionID string) (token.Set, error) {
	return token.Set{SessionID: sessionID, AccessToken: "at-" + sessionID}, nil
}

// fakeProvider serves 5 playlists two at a time and 3 tracks per playlist.
type fakeProvider struct {
	playlistCalls atomic.Int32
	trackCalls    atomic.Int32
	gate          chan struct{}
	err           error
}

func (p *fakeProvider) Playlists(_ context.Context, _ string, offset int) (provider.PlaylistPage, error) {
	p.playlistCalls.Add(1)
	if p.gate != nil {
		<-p.gate
	}
	if p.err != nil {
		return provider.PlaylistPage{}, p.err
	}
	const total, limit = 5, 2
	page := provider.PlaylistPage{Limit: limit, Offset: offset, Total: total}
	for i := offset; i < total && i < offset+limit; i++ {
		count := i * 10
		pl := provider.Playlist{
			ID:     fmt.Sprintf("p%d", i),
			Name:   fmt.Sprintf("Playlist %d", i),
			Images: []provider.Image{{URL: "https://img.test/" + fmt.Sprint(i)}},
			Owner:  &provider.Owner{ID: "owner", DisplayName: "Owner"},
		}
		pl.Tracks = &struct {
			Total *int `json:"total"`
		}{Total: &count}
		page.Items = append(page.Items, pl)
	}
	if offset+limit < total {
		next := fmt.Sprintf("https://api.test/v1/me/playlists?offset=%d&limit=%d", offset+limit, limit)
		page.Next = &next
	}
	return page, nil
}

func (p *fakeProvider) PlaylistTracks(_ context.Context, _, playlistID string, offset int) (provider.TrackPage, error) {
	p.trackCalls.Add(1)
	if playlistID == "missing" {
		return provider.TrackPage{}, errors.Wrapf(errors.ErrNotFound, "playlist")
	}
	page := provider.TrackPage{Limit: 2, Offset: offset, Total: 3}
	for i := offset; i < 3 && i < offset+2; i++ {
		tr := &provider.Track{
			ID:      fmt.Sprintf("%s-t%d", playlistID, i),
			Name:    fmt.Sprintf("Track %d", i),
			Artists: []provider.Artist{{Name: "A"}, {Name: "B"}},
			Album:   &provider.Album{Name: "Album", Images: []provider.Image{{URL: "https://img.test/album"}}},
		}
		page.Items = append(page.Items, struct {
			Track *provider.Track `json:"track"`
		}{Track: tr})
	}
	page.Items = append(page.Items, struct {
		Track *provider.Track `json:"track"`
	}{})
	if offset+2 < 3 {
		next := fmt.Sprintf("https://api.test/v1/playlists/%s/tracks?offset=%d", playlistID, offset+2)
		page.Next = &next
	}
	return page, nil
}

type testEnv struct {
	svc   *playlists.Service
	store *memory.Store
	prov  *fakeProvider
	codec *pagetoken.Codec
}

func addSession(t *testing.T, st *memory.Store, sessionID, providerUserID string) {
	t.Helper()
	ctx := context.Background()
	state := "state-" + sessionID
	require.NoError(t, st.SavePKCE(ctx, pkce.Entry{State: state, ExpiresAt: testNow.Add(time.Minute)}))
	require.NoError(t, st.CompleteAuth(ctx, state,
		sessions.Session{ID: sessionID, ProviderUserID: providerUserID, CreatedAt: testNow, ExpiresAt: testNow.Add(time.Hour)},
		token.Set{AccessToken: "at"},
	))
}

func setupService(t *testing.T) *testEnv {
	t.Helper()
	nowFn := func() time.Time { return testNow }
	st := memory.New()
	addSession(t, st, "s1", "user-1")
	addSession(t, st, "s2", "user-1")
	addSession(t, st, "other", "user-2")

	registry, err := sessions.NewRegistry(st, fakeTokens{}, sessions.WithNowTime(nowFn))
	require.NoError(t, err)
	reader, err := providercache.NewReader(st, st, providercache.WithNowTime(nowFn))
	require.NoError(t, err)
	codec, err := pagetoken.NewRandomCodec(pagetoken.WithNowTime(nowFn))
	require.NoError(t, err)
	prov := &fakeProvider{}
	svc, err := playlists.NewService(registry, reader, prov, st, codec, playlists.WithCacheTTL(time.Hour))
	require.NoError(t, err)
	return &testEnv{svc: svc, store: st, prov: prov, codec: codec}
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := playlists.NewService(nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestService_ListPlaylists(t *testing.T) {
	ctx := context.Background()

	t.Run("walks pages with continuation tokens", func(t *testing.T) {
		env := setupService(t)
		var ids []string
		pageToken := ""
		for pages := 0; pages < 10; pages++ {
			page, err := env.svc.ListPlaylists(ctx, "s1", pageToken)
			require.NoError(t, err)
			for _, item := range page.Items {
				ids = append(ids, item.PlaylistID)
			}
			if page.NextPageToken == "" {
				break
			}
			pageToken = page.NextPageToken
		}
		require.Equal(t, []string{"p0", "p1", "p2", "p3", "p4"}, ids)
		require.Equal(t, int32(3), env.prov.playlistCalls.Load())
	})

	t.Run("maps provider fields", func(t *testing.T) {
		env := setupService(t)
		page, err := env.svc.ListPlaylists(ctx, "s1", "")
		require.NoError(t, err)
		require.Equal(t, playlists.Item{
			PlaylistID: "p1",
			Name:       "Playlist 1",
			ImageURL:   "https://img.test/1",
			Owner:      "Owner",
			TrackCount: 10,
		}, page.Items[1])
	})

	t.Run("cache shared across sessions of one identity", func(t *testing.T) {
		env := setupService(t)
		_, err := env.svc.ListPlaylists(ctx, "s1", "")
		require.NoError(t, err)
		_, err = env.svc.ListPlaylists(ctx, "s2", "")
		require.NoError(t, err)
		require.Equal(t, int32(1), env.prov.playlistCalls.Load())

		for _, sid := range []string{"s1", "s2"} {
			links, err := env.store.SessionLinks(ctx, sid)
			require.NoError(t, err)
			require.Len(t, links, 1)
			require.Equal(t, "playlists:0", links[0].PageKey)
		}

		_, err = env.svc.ListPlaylists(ctx, "other", "")
		require.NoError(t, err)
		require.Equal(t, int32(2), env.prov.playlistCalls.Load())
	})

	t.Run("concurrent first page fill", func(t *testing.T) {
		env := setupService(t)
		env.prov.gate = make(chan struct{})
		var wg sync.WaitGroup
		results := make([]playlists.Page, 2)
		for i, sid := range []string{"s1", "s2"} {
			wg.Add(1)
			go func(i int, sid string) {
				defer wg.Done()
				page, err := env.svc.ListPlaylists(ctx, sid, "")
				assert.NoError(t, err)
				results[i] = page
			}(i, sid)
		}
		time.Sleep(50 * time.Millisecond)
		close(env.prov.gate)
		wg.Wait()

		require.Equal(t, int32(1), env.prov.playlistCalls.Load())
		require.Equal(t, results[0].Items, results[1].Items)
	})

	t.Run("selected flag is per session", func(t *testing.T) {
		env := setupService(t)
		require.NoError(t, env.store.ReplaceSelection(ctx, "s1", []string{"p1"}, testNow))

		page, err := env.svc.ListPlaylists(ctx, "s1", "")
		require.NoError(t, err)
		require.False(t, page.Items[0].Selected)
		require.True(t, page.Items[1].Selected)

		page, err = env.svc.ListPlaylists(ctx, "s2", "")
		require.NoError(t, err)
		require.False(t, page.Items[1].Selected)

		require.NoError(t, env.store.ReplaceSelection(ctx, "s1", []string{"p0"}, testNow))
		page, err = env.svc.ListPlaylists(ctx, "s1", "")
		require.NoError(t, err)
		require.True(t, page.Items[0].Selected)
		require.False(t, page.Items[1].Selected)
		require.Equal(t, int32(1), env.prov.playlistCalls.Load())
	})

	t.Run("invalid page tokens", func(t *testing.T) {
		env := setupService(t)
		_, err := env.svc.ListPlaylists(ctx, "s1", "garbage")
		require.ErrorIs(t, err, errors.ErrInvalidPageToken)

		foreign, err := env.codec.Encode(pagetoken.Cursor{ProviderUserID: "user-2", Resource: "playlists", Offset: 2})
		require.NoError(t, err)
		_, err = env.svc.ListPlaylists(ctx, "s1", foreign)
		require.ErrorIs(t, err, errors.ErrInvalidPageToken)
		require.Zero(t, env.prov.playlistCalls.Load())
	})

	t.Run("invalid session", func(t *testing.T) {
		env := setupService(t)
		_, err := env.svc.ListPlaylists(ctx, "nope", "")
		require.ErrorIs(t, err, errors.ErrInvalidSession)

		require.NoError(t, env.store.Logout(ctx, "s1", token.Denylisted{}))
		_, err = env.svc.ListPlaylists(ctx, "s1", "")
		require.ErrorIs(t, err, errors.ErrInvalidSession)
		require.Zero(t, env.prov.playlistCalls.Load())
	})

	t.Run("provider failure is not cached", func(t *testing.T) {
		env := setupService(t)
		env.prov.err = errors.Wrapf(errors.ErrProviderUnavailable, "503")
		_, err := env.svc.ListPlaylists(ctx, "s1", "")
		require.ErrorIs(t, err, errors.ErrProviderUnavailable)

		env.prov.err = nil
		_, err = env.svc.ListPlaylists(ctx, "s1", "")
		require.NoError(t, err)
		require.Equal(t, int32(2), env.prov.playlistCalls.Load())
	})
}

func TestService_ListPlaylistTracks(t *testing.T) {
	ctx := context.Background()

	t.Run("pages by offset", func(t *testing.T) {
		env := setupService(t)
		page, err := env.svc.ListPlaylistTracks(ctx, "s1", "p1", 0)
		require.NoError(t, err)
		require.Equal(t, "p1", page.PlaylistID)
		require.Equal(t, 2, page.Limit)
		require.Len(t, page.Tracks, 2)
		require.Equal(t, []string{"A", "B"}, page.Tracks[0].Artists)
		require.Equal(t, "Album", page.Tracks[0].Album)
		require.NotNil(t, page.NextOffset)
		require.Equal(t, 2, *page.NextOffset)

		page, err = env.svc.ListPlaylistTracks(ctx, "s1", "p1", *page.NextOffset)
		require.NoError(t, err)
		require.Len(t, page.Tracks, 1)
		require.Nil(t, page.NextOffset)
	})

	t.Run("served from cache", func(t *testing.T) {
		env := setupService(t)
		_, err := env.svc.ListPlaylistTracks(ctx, "s1", "p1", 0)
		require.NoError(t, err)
		_, err = env.svc.ListPlaylistTracks(ctx, "s2", "p1", 0)
		require.NoError(t, err)
		require.Equal(t, int32(1), env.prov.trackCalls.Load())
	})

	t.Run("bad input", func(t *testing.T) {
		env := setupService(t)
		_, err := env.svc.ListPlaylistTracks(ctx, "s1", " ", 0)
		require.ErrorIs(t, err, errors.ErrInvalidRequest)
		_, err = env.svc.ListPlaylistTracks(ctx, "s1", "p1", -1)
		require.ErrorIs(t, err, errors.ErrInvalidRequest)
	})

	t.Run("unknown playlist", func(t *testing.T) {
		env := setupService(t)
		_, err := env.svc.ListPlaylistTracks(ctx, "s1", "missing", 0)
		require.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("invalid session", func(t *testing.T) {
		env := setupService(t)
		_, err := env.svc.ListPlaylistTracks(ctx, "nope", "p1", 0)
		require.ErrorIs(t, err, errors.ErrInvalidSession)
	})
}
