package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes
	RouteAuthStart = "/api/spotify/auth/start"
	RouteCallback  = "/api/spotify/callback"
	RouteLogout    = "/api/spotify/logout"

	// Playlist Routes
	RoutePlaylists      = "/api/spotify/playlists"
	RoutePlaylistTracks = "/playlists/{playlistId}/tracks"

	// Selection Routes
	RoutePreferences       = "/api/spotify/playlist-preferences"
	RoutePreferencesAdd    = "/api/spotify/playlist-preferences/add"
	RoutePreferencesRemove = "/api/spotify/playlist-preferences/remove"

	RouteHealth = "/healthz"
)

// Request header and query names
const (
	headerSessionID     = "X-Session-Id"
	headerCorrelationID = "X-Correlation-Id"
	headerDeviceInfo    = "X-Device-Info"

	queryDevice    = "device"
	queryPageToken = "pageToken"
	queryOffset    = "offset"
)
