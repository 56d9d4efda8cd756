package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-playlist-gateway/auth"
	"github.com/jrsteele09/go-playlist-gateway/internal/config"
	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
	"github.com/jrsteele09/go-playlist-gateway/playlists"
)

// Config is the configuration the HTTP layer reads.
type Config interface {
	config.EnvConfig
	config.CorsConfig
}

type AuthFlow interface {
	StartAuth(ctx context.Context, scopes []string) (auth.StartResult, error)
	HandleCallback(ctx context.Context, code, state, deviceInfo string) (string, error)
	DeepLink(sessionID string) string
}

type LogoutService interface {
	Logout(ctx context.Context, sessionID string) error
}

type PlaylistReader interface {
	ListPlaylists(ctx context.Context, sessionID, pageToken string) (playlists.Page, error)
	ListPlaylistTracks(ctx context.Context, sessionID, playlistID string, offset int) (playlists.TracksPage, error)
}

type SelectionService interface {
	List(ctx context.Context, sessionID string) ([]string, error)
	Replace(ctx context.Context, sessionID string, playlistIDs []string) ([]string, error)
	Add(ctx context.Context, sessionID string, playlistIDs []string) ([]string, error)
	Remove(ctx context.Context, sessionID string, playlistIDs []string) ([]string, error)
	Clear(ctx context.Context, sessionID string) error
}

// Services are the domain operations the routes expose.
type Services struct {
	Auth      AuthFlow
	Logout    LogoutService
	Playlists PlaylistReader
	Selection SelectionService
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   Config
	services Services
	nowTime  func() time.Time
	logger   zerolog.Logger
}

// ServerOption defines a function type to modify the Server instance.
type ServerOption func(*Server)

func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func New(cfg Config, services Services, options ...ServerOption) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[Server New] config is required")
	}
	if services.Auth == nil || services.Logout == nil || services.Playlists == nil || services.Selection == nil {
		return nil, errors.New("[Server New] all services are required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		services: services,
		nowTime:  time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	s.logger.Debug().Msgf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}
