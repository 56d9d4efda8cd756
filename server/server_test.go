package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-playlist-gateway/auth"
	"github.com/jrsteele09/go-playlist-gateway/internal/config"
	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
	"github.com/jrsteele09/go-playlist-gateway/playlists"
	"github.com/jrsteele09/go-playlist-gateway/server"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type testConfig struct {
	config.EnvVars
	config.Cors
}

type fakeAuth struct {
	scopes     []string
	code       string
	state      string
	deviceInfo string
	err        error
}

func (f *fakeAuth) StartAuth(_ context.Context, scopes []string) (auth.StartResult, error) {
	f.scopes = scopes
	if f.err != nil {
		return auth.StartResult{}, f.err
	}
	return auth.StartResult{AuthorizationURL: "https://provider.test/authorize?state=st", State: "st"}, nil
}

func (f *fakeAuth) HandleCallback(_ context.Context, code, state, deviceInfo string) (string, error) {
	f.code, f.state, f.deviceInfo = code, state, deviceInfo
	if f.err != nil {
		return "", f.err
	}
	return "sid-1", nil
}

func (f *fakeAuth) DeepLink(sessionID string) string {
	return "swipez://oauth-callback/spotify?sid=" + sessionID
}

type fakeLogout struct {
	sessionID string
	err       error
}

func (f *fakeLogout) Logout(_ context.Context, sessionID string) error {
	f.sessionID = sessionID
	return f.err
}

type fakePlaylists struct {
	sessionID  string
	pageToken  string
	playlistID string
	offset     int
	err        error
	panics     bool
}

func (f *fakePlaylists) ListPlaylists(_ context.Context, sessionID, pageToken string) (playlists.Page, error) {
	if f.panics {
		panic("boom")
	}
	f.sessionID, f.pageToken = sessionID, pageToken
	if f.err != nil {
		return playlists.Page{}, f.err
	}
	return playlists.Page{
		Items:         []playlists.Item{{PlaylistID: "p1", Name: "Road trip", TrackCount: 3, Selected: true}},
		NextPageToken: "next",
	}, nil
}

func (f *fakePlaylists) ListPlaylistTracks(_ context.Context, sessionID, playlistID string, offset int) (playlists.TracksPage, error) {
	f.sessionID, f.playlistID, f.offset = sessionID, playlistID, offset
	if f.err != nil {
		return playlists.TracksPage{}, f.err
	}
	return playlists.TracksPage{PlaylistID: playlistID, Limit: 20, Offset: offset, Tracks: []playlists.Track{}}, nil
}

type fakeSelection struct {
	ids       []string
	sessionID string
	err       error
}

func (f *fakeSelection) List(_ context.Context, sessionID string) ([]string, error) {
	f.sessionID = sessionID
	return f.ids, f.err
}

func (f *fakeSelection) Replace(_ context.Context, sessionID string, ids []string) ([]string, error) {
	f.sessionID = sessionID
	f.ids = ids
	return f.ids, f.err
}

func (f *fakeSelection) Add(_ context.Context, sessionID string, ids []string) ([]string, error) {
	f.sessionID = sessionID
	f.ids = append(f.ids, ids...)
	return f.ids, f.err
}

func (f *fakeSelection) Remove(_ context.Context, sessionID string, _ []string) ([]string, error) {
	f.sessionID = sessionID
	f.ids = nil
	return f.ids, f.err
}

func (f *fakeSelection) Clear(_ context.Context, sessionID string) error {
	f.sessionID = sessionID
	f.ids = nil
	return f.err
}

type testEnv struct {
	srv       *server.Server
	auth      *fakeAuth
	logout    *fakeLogout
	playlists *fakePlaylists
	selection *fakeSelection
}

func setupServer(t *testing.T, origins ...string) *testEnv {
	t.Helper()
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	env := &testEnv{
		auth:      &fakeAuth{},
		logout:    &fakeLogout{},
		playlists: &fakePlaylists{},
		selection: &fakeSelection{},
	}
	srv, err := server.New(
		testConfig{EnvVars: config.EnvVars{Env: "TEST"}, Cors: config.Cors{Origins: origins}},
		server.Services{Auth: env.auth, Logout: env.logout, Playlists: env.playlists, Selection: env.selection},
		server.WithNowTime(func() time.Time { return testNow }),
	)
	require.NoError(t, err)
	env.srv = srv
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) server.APIError {
	t.Helper()
	var apiErr server.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestNew(t *testing.T) {
	_, err := server.New(nil, server.Services{})
	require.Error(t, err)
	_, err = server.New(testConfig{}, server.Services{Auth: &fakeAuth{}})
	require.Error(t, err)
}

func TestStartAuth(t *testing.T) {
	t.Run("returns the authorization url", func(t *testing.T) {
		env := setupServer(t)
		rec := env.do(t, http.MethodPost, server.RouteAuthStart, `{"scopes":["playlist-read-private"]}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

		var body auth.StartResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "st", body.State)
		require.Equal(t, []string{"playlist-read-private"}, env.auth.scopes)
	})

	t.Run("malformed body", func(t *testing.T) {
		env := setupServer(t)
		rec := env.do(t, http.MethodPost, server.RouteAuthStart, `{"scopes":`, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "bad_request", decodeError(t, rec).Code)
	})

	t.Run("invalid scope", func(t *testing.T) {
		env := setupServer(t)
		env.auth.err = errors.Wrapf(errors.ErrInvalidScope, "unsupported scope %q", "user-follow-modify")
		rec := env.do(t, http.MethodPost, server.RouteAuthStart, `{"scopes":["user-follow-modify"]}`, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "invalid_scope", decodeError(t, rec).Code)
	})
}

func TestCallback(t *testing.T) {
	t.Run("redirects to the deep link", func(t *testing.T) {
		env := setupServer(t)
		rec := env.do(t, http.MethodGet, server.RouteCallback+"?code=c1&state=st&device=ios", "", nil)
		require.Equal(t, http.StatusFound, rec.Code)
		require.Equal(t, "swipez://oauth-callback/spotify?sid=sid-1", rec.Header().Get("Location"))
		require.Equal(t, "c1", env.auth.code)
		require.Equal(t, "st", env.auth.state)
		require.Equal(t, "ios", env.auth.deviceInfo)
	})

	t.Run("device header wins over query", func(t *testing.T) {
		env := setupServer(t)
		env.do(t, http.MethodGet, server.RouteCallback+"?code=c1&state=st&device=ios", "", map[string]string{"X-Device-Info": "pixel"})
		require.Equal(t, "pixel", env.auth.deviceInfo)
	})

	t.Run("unknown state", func(t *testing.T) {
		env := setupServer(t)
		env.auth.err = errors.ErrUnknownOrExpiredState
		rec := env.do(t, http.MethodGet, server.RouteCallback+"?code=c1&state=nope", "", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "invalid_state", decodeError(t, rec).Code)
	})

	t.Run("provider refusal", func(t *testing.T) {
		env := setupServer(t)
		env.auth.err = errors.Wrapf(errors.ErrProviderExchange, "invalid_grant")
		rec := env.do(t, http.MethodGet, server.RouteCallback+"?code=c1&state=st", "", nil)
		require.Equal(t, http.StatusBadGateway, rec.Code)
		require.Equal(t, "token_exchange_failed", decodeError(t, rec).Code)
	})
}

func TestLogout(t *testing.T) {
	t.Run("logs out", func(t *testing.T) {
		env := setupServer(t)
		rec := env.do(t, http.MethodPost, server.RouteLogout, "", map[string]string{"X-Session-Id": "sid-1"})
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "sid-1", env.logout.sessionID)
	})

	t.Run("already logged out is still no content", func(t *testing.T) {
		env := setupServer(t)
		env.logout.err = errors.Wrapf(errors.ErrInvalidSession, "session gone")
		rec := env.do(t, http.MethodPost, server.RouteLogout, "", map[string]string{"X-Session-Id": "sid-1"})
		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		env := setupServer(t)
		env.logout.err = errors.New("connection reset")
		rec := env.do(t, http.MethodPost, server.RouteLogout, "", map[string]string{"X-Session-Id": "sid-1"})
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		apiErr := decodeError(t, rec)
		require.Equal(t, "internal", apiErr.Code)
		require.Equal(t, "internal error", apiErr.Message)
	})
}

func TestListPlaylists(t *testing.T) {
	t.Run("returns the page", func(t *testing.T) {
		env := setupServer(t)
		rec := env.do(t, http.MethodGet, server.RoutePlaylists+"?pageToken=tok", "", map[string]string{"X-Session-Id": "sid-1"})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "sid-1", env.playlists.sessionID)
		require.Equal(t, "tok", env.playlists.pageToken)

		var page playlists.Page
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		require.Len(t, page.Items, 1)
		require.True(t, page.Items[0].Selected)
		require.Equal(t, "next", page.NextPageToken)
	})

	errorCases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid session", errors.ErrInvalidSession, http.StatusUnauthorized, "invalid_session"},
		{"reauth required", errors.ErrReauthRequired, http.StatusUnauthorized, "reauth_required"},
		{"invalid page token", errors.ErrInvalidPageToken, http.StatusBadRequest, "invalid_page_token"},
		{"provider timeout", errors.ErrProviderTimeout, http.StatusGatewayTimeout, "provider_timeout"},
		{"provider unavailable", errors.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable"},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			env := setupServer(t)
			env.playlists.err = errors.Wrapf(tc.err, "listing")
			rec := env.do(t, http.MethodGet, server.RoutePlaylists, "", map[string]string{"X-Session-Id": "sid-1"})
			require.Equal(t, tc.status, rec.Code)
			apiErr := decodeError(t, rec)
			require.Equal(t, tc.code, apiErr.Code)
			require.Equal(t, testNow, apiErr.Timestamp)
			require.NotEmpty(t, apiErr.CorrelationID)
		})
	}
}

func TestListPlaylistTracks(t *testing.T) {
	t.Run("session id from header", func(t *testing.T) {
		env := setupServer(t)
		rec := env.do(t, http.MethodGet, "/playlists/p1/tracks?offset=40", "", map[string]string{"X-Session-Id": "sid-1"})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "sid-1", env.playlists.sessionID)
		require.Equal(t, "p1", env.playlists.playlistID)
		require.Equal(t, 40, env.playlists.offset)
	})

	t.Run("session id from query", func(t *testing.T) {
		env := setupServer(t)
		rec := env.do(t, http.MethodGet, "/playlists/p1/tracks?X-Session-Id=sid-2", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "sid-2", env.playlists.sessionID)
		require.Equal(t, 0, env.playlists.offset)
	})

	t.Run("bad offset", func(t *testing.T) {
		env := setupServer(t)
		for _, offset := range []string{"abc", "-1"} {
			rec := env.do(t, http.MethodGet, "/playlists/p1/tracks?offset="+offset, "", map[string]string{"X-Session-Id": "sid-1"})
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, "bad_request", decodeError(t, rec).Code)
		}
	})

	t.Run("unknown playlist", func(t *testing.T) {
		env := setupServer(t)
		env.playlists.err = errors.ErrNotFound
		rec := env.do(t, http.MethodGet, "/playlists/missing/tracks", "", map[string]string{"X-Session-Id": "sid-1"})
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, "not_found", decodeError(t, rec).Code)
	})
}

func TestPreferences(t *testing.T) {
	headers := map[string]string{"X-Session-Id": "sid-1"}
	decodeIDs := func(t *testing.T, rec *httptest.ResponseRecorder) []string {
		t.Helper()
		var body struct {
			PlaylistIDs []string `json:"playlistIds"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body.PlaylistIDs
	}

	t.Run("empty selection is an empty array", func(t *testing.T) {
		env := setupServer(t)
		rec := env.do(t, http.MethodGet, server.RoutePreferences, "", headers)
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"playlistIds":[]}`, rec.Body.String())
	})

	t.Run("replace add remove clear", func(t *testing.T) {
		env := setupServer(t)

		rec := env.do(t, http.MethodPut, server.RoutePreferences, `{"playlistIds":["a","b"]}`, headers)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, []string{"a", "b"}, decodeIDs(t, rec))

		rec = env.do(t, http.MethodPatch, server.RoutePreferencesAdd, `{"playlistIds":["c"]}`, headers)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, []string{"a", "b", "c"}, decodeIDs(t, rec))

		rec = env.do(t, http.MethodPatch, server.RoutePreferencesRemove, `{"playlistIds":["a"]}`, headers)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, decodeIDs(t, rec))

		rec = env.do(t, http.MethodDelete, server.RoutePreferences, "", headers)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "sid-1", env.selection.sessionID)
	})

	t.Run("invalid session", func(t *testing.T) {
		env := setupServer(t)
		env.selection.err = errors.ErrInvalidSession
		rec := env.do(t, http.MethodDelete, server.RoutePreferences, "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("correlation id is echoed", func(t *testing.T) {
		env := setupServer(t)
		env.playlists.err = errors.ErrInvalidSession
		rec := env.do(t, http.MethodGet, server.RoutePlaylists, "", map[string]string{"X-Correlation-Id": "corr-1"})
		require.Equal(t, "corr-1", rec.Header().Get("X-Correlation-Id"))
		require.Equal(t, "corr-1", decodeError(t, rec).CorrelationID)
	})

	t.Run("correlation id is generated", func(t *testing.T) {
		env := setupServer(t)
		rec := env.do(t, http.MethodGet, server.RoutePlaylists, "", nil)
		require.NotEmpty(t, rec.Header().Get("X-Correlation-Id"))
	})

	t.Run("panics become internal errors", func(t *testing.T) {
		env := setupServer(t)
		env.playlists.panics = true
		rec := env.do(t, http.MethodGet, server.RoutePlaylists, "", nil)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal", decodeError(t, rec).Code)
	})

	t.Run("allowed origin", func(t *testing.T) {
		env := setupServer(t, "https://app.example")
		rec := env.do(t, http.MethodGet, server.RoutePlaylists, "", map[string]string{"Origin": "https://app.example"})
		require.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("disallowed origin", func(t *testing.T) {
		env := setupServer(t, "https://app.example")
		rec := env.do(t, http.MethodGet, server.RoutePlaylists, "", map[string]string{"Origin": "https://evil.example"})
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		env := setupServer(t)
		rec := env.do(t, http.MethodOptions, server.RoutePreferences, "", map[string]string{"Origin": "https://app.example"})
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	})
}

func TestHealth(t *testing.T) {
	env := setupServer(t)
	rec := env.do(t, http.MethodGet, server.RouteHealth, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
