package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jrsteele09/go-playlist-gateway/internal/config"
	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
	"github.com/jrsteele09/go-playlist-gateway/provider"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeProvider struct {
	server      *httptest.Server
	tokenStatus int
	apiStatus   int
	delay       time.Duration
	lastForm    url.Values
	lastQuery   url.Values
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	f := &fakeProvider{tokenStatus: http.StatusOK, apiStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.lastForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		if f.tokenStatus != http.StatusOK {
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"bad"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"token_type":    "Bearer",
			"refresh_token": "rt-1",
			"expires_in":    3600,
			"scope":         "playlist-read-private",
		})
	})
	mux.HandleFunc("GET /v1/me", func(w http.ResponseWriter, r *http.Request) {
		if !f.api(w, r) {
			return
		}
		_, _ = w.Write([]byte(`{"id":"user-1","display_name":"User One"}`))
	})
	mux.HandleFunc("GET /v1/me/playlists", func(w http.ResponseWriter, r *http.Request) {
		if !f.api(w, r) {
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"pl1","name":"Mix","images":[{"url":"http://img/1"}],"owner":{"id":"o","display_name":"Owner"},"tracks":{"total":3}}],
			"limit":20,"offset":0,"total":25,"next":"https://api.example/v1/me/playlists?offset=20&limit=20"}`))
	})
	mux.HandleFunc("GET /v1/playlists/{id}/tracks", func(w http.ResponseWriter, r *http.Request) {
		if !f.api(w, r) {
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"track":{"id":"t1","name":"Song","artists":[{"id":"a1","name":"Artist"}],"album":{"id":"al1","name":"Album","images":[{"url":"http://img/al1"}]}}},{"track":null}],
			"limit":20,"offset":0,"total":2,"next":null}`))
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeProvider) api(w http.ResponseWriter, r *http.Request) bool {
	time.Sleep(f.delay)
	f.lastQuery = r.URL.Query()
	if r.Header.Get("Authorization") != "Bearer at-1" {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	if f.apiStatus != http.StatusOK {
		w.WriteHeader(f.apiStatus)
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	return true
}

func (f *fakeProvider) client(t *testing.T, timeout time.Duration) *provider.Client {
	t.Helper()
	c, err := provider.New(config.Provider{
		ClientID:    "client-1",
		RedirectURI: "http://localhost/callback",
		AuthURL:     f.server.URL + "/authorize",
		TokenURL:    f.server.URL + "/api/token",
		APIBaseURL:  f.server.URL + "/v1",
		Timeout:     timeout,
		PageSize:    20,
	})
	require.NoError(t, err)
	return c
}

func TestClient_AuthCodeURL(t *testing.T) {
	f := newFakeProvider(t)
	c := f.client(t, time.Second)

	verifier := oauth2.GenerateVerifier()
	raw := c.AuthCodeURL("state-1", verifier, []string{"playlist-read-private", "user-read-email"})
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "/authorize", u.Path)
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "client-1", q.Get("client_id"))
	require.Equal(t, "state-1", q.Get("state"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, oauth2.S256ChallengeFromVerifier(verifier), q.Get("code_challenge"))
	require.Equal(t, "playlist-read-private user-read-email", q.Get("scope"))
	require.Equal(t, "http://localhost/callback", q.Get("redirect_uri"))
}

func TestClient_Exchange(t *testing.T) {
	t.Run("sends verifier and client id", func(t *testing.T) {
		f := newFakeProvider(t)
		tok, err := f.client(t, time.Second).Exchange(context.Background(), "code-1", "verifier-1")
		require.NoError(t, err)
		require.Equal(t, "at-1", tok.AccessToken)
		require.Equal(t, "rt-1", tok.RefreshToken)
		require.Equal(t, "code-1", f.lastForm.Get("code"))
		require.Equal(t, "verifier-1", f.lastForm.Get("code_verifier"))
		require.Equal(t, "client-1", f.lastForm.Get("client_id"))
		require.Equal(t, "authorization_code", f.lastForm.Get("grant_type"))
	})

	t.Run("refused code", func(t *testing.T) {
		f := newFakeProvider(t)
		f.tokenStatus = http.StatusBadRequest
		_, err := f.client(t, time.Second).Exchange(context.Background(), "code-1", "v")
		require.ErrorIs(t, err, errors.ErrProviderExchange)
	})

	t.Run("provider down", func(t *testing.T) {
		f := newFakeProvider(t)
		f.tokenStatus = http.StatusServiceUnavailable
		_, err := f.client(t, time.Second).Exchange(context.Background(), "code-1", "v")
		require.ErrorIs(t, err, errors.ErrProviderUnavailable)
	})

	t.Run("unreachable", func(t *testing.T) {
		f := newFakeProvider(t)
		c := f.client(t, time.Second)
		f.server.Close()
		_, err := c.Exchange(context.Background(), "code-1", "v")
		require.ErrorIs(t, err, errors.ErrProviderUnavailable)
	})
}

func TestClient_Refresh(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		f := newFakeProvider(t)
		tok, err := f.client(t, time.Second).Refresh(context.Background(), "rt-0")
		require.NoError(t, err)
		require.Equal(t, "at-1", tok.AccessToken)
		require.Equal(t, "refresh_token", f.lastForm.Get("grant_type"))
		require.Equal(t, "rt-0", f.lastForm.Get("refresh_token"))
	})

	t.Run("refused requires reauthentication", func(t *testing.T) {
		f := newFakeProvider(t)
		f.tokenStatus = http.StatusBadRequest
		_, err := f.client(t, time.Second).Refresh(context.Background(), "rt-0")
		require.ErrorIs(t, err, errors.ErrReauthRequired)
	})
}

func TestClient_API(t *testing.T) {
	t.Run("profile", func(t *testing.T) {
		f := newFakeProvider(t)
		p, err := f.client(t, time.Second).Profile(context.Background(), "at-1")
		require.NoError(t, err)
		require.Equal(t, "user-1", p.ID)
	})

	t.Run("playlists page", func(t *testing.T) {
		f := newFakeProvider(t)
		page, err := f.client(t, time.Second).Playlists(context.Background(), "at-1", 0)
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		require.Equal(t, "pl1", page.Items[0].ID)
		require.Equal(t, 3, *page.Items[0].Tracks.Total)
		require.Equal(t, "20", f.lastQuery.Get("limit"))
		require.Equal(t, "0", f.lastQuery.Get("offset"))

		next, ok := provider.NextOffset(page.Next)
		require.True(t, ok)
		require.Equal(t, 20, next)
	})

	t.Run("tracks page", func(t *testing.T) {
		f := newFakeProvider(t)
		page, err := f.client(t, time.Second).PlaylistTracks(context.Background(), "at-1", "pl1", 0)
		require.NoError(t, err)
		require.Len(t, page.Items, 2)
		require.Equal(t, "t1", page.Items[0].Track.ID)
		require.Nil(t, page.Items[1].Track)
		_, ok := provider.NextOffset(page.Next)
		require.False(t, ok)
	})

	t.Run("status mapping", func(t *testing.T) {
		cases := map[int]error{
			http.StatusNotFound:            errors.ErrNotFound,
			http.StatusTooManyRequests:     errors.ErrProviderUnavailable,
			http.StatusBadGateway:          errors.ErrProviderUnavailable,
			http.StatusInternalServerError: errors.ErrProviderUnavailable,
		}
		for status, want := range cases {
			f := newFakeProvider(t)
			f.apiStatus = status
			_, err := f.client(t, time.Second).Playlists(context.Background(), "at-1", 0)
			require.ErrorIs(t, err, want, "status %d", status)
		}
	})

	t.Run("rejected access token", func(t *testing.T) {
		f := newFakeProvider(t)
		_, err := f.client(t, time.Second).Profile(context.Background(), "stale")
		require.ErrorIs(t, err, errors.ErrReauthRequired)
	})

	t.Run("timeout", func(t *testing.T) {
		f := newFakeProvider(t)
		f.delay = 200 * time.Millisecond
		_, err := f.client(t, 20*time.Millisecond).Profile(context.Background(), "at-1")
		require.ErrorIs(t, err, errors.ErrProviderTimeout)
	})
}

func TestValidateScopes(t *testing.T) {
	got, err := provider.ValidateScopes([]string{" playlist-read-private", "user-read-email", "playlist-read-private"})
	require.NoError(t, err)
	require.Equal(t, []string{"playlist-read-private", "user-read-email"}, got)

	_, err = provider.ValidateScopes(nil)
	require.ErrorIs(t, err, errors.ErrInvalidScope)
	_, err = provider.ValidateScopes([]string{" "})
	require.ErrorIs(t, err, errors.ErrInvalidScope)
	_, err = provider.ValidateScopes([]string{"playlist-read-private", "admin"})
	require.ErrorIs(t, err, errors.ErrInvalidScope)
}

func TestNextOffset(t *testing.T) {
	s := func(v string) *string { return &v }
	cases := []struct {
		next   *string
		offset int
		ok     bool
	}{
		{nil, 0, false},
		{s(""), 0, false},
		{s("https://api/x?offset=40&limit=20"), 40, true},
		{s("https://api/x?limit=20"), 0, false},
		{s("https://api/x?offset=-1"), 0, false},
	}
	for _, c := range cases {
		offset, ok := provider.NextOffset(c.next)
		require.Equal(t, c.ok, ok)
		require.Equal(t, c.offset, offset)
	}
}
