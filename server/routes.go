package server

import "net/http"

func (s *Server) initRoutes() {
	// Authorization
	s.RegisterRouteHandler("POST "+RouteAuthStart, ChainMiddleware(s.StartAuth(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.Callback(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.Logout(), s.APIMiddleware()...))

	// Playlists
	s.RegisterRouteHandler("GET "+RoutePlaylists, ChainMiddleware(s.ListPlaylists(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RoutePlaylistTracks, ChainMiddleware(s.ListPlaylistTracks(), s.APIMiddleware()...))

	// Selection
	s.RegisterRouteHandler("GET "+RoutePreferences, ChainMiddleware(s.GetPreferences(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PUT "+RoutePreferences, ChainMiddleware(s.ReplacePreferences(), s.APIMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RoutePreferences, ChainMiddleware(s.ClearPreferences(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PATCH "+RoutePreferencesAdd, ChainMiddleware(s.AddPreferences(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PATCH "+RoutePreferencesRemove, ChainMiddleware(s.RemovePreferences(), s.APIMiddleware()...))

	// CORS preflight for every API path
	for _, route := range []string{
		RouteAuthStart, RouteLogout, RoutePlaylists, RoutePlaylistTracks,
		RoutePreferences, RoutePreferencesAdd, RoutePreferencesRemove,
	} {
		s.RegisterRouteHandler("OPTIONS "+route, ChainMiddleware(s.Preflight(), s.APIMiddleware()...))
	}

	s.RegisterRouteFunc("GET "+RouteHealth, s.Health())
}

func (s *Server) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
