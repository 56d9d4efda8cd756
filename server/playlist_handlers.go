package server

import (
	"net/http"
	"strconv"

	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
)

func (s *Server) ListPlaylists() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := s.services.Playlists.ListPlaylists(r.Context(), r.Header.Get(headerSessionID), r.URL.Query().Get(queryPageToken))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

// ListPlaylistTracks serves one page of a playlist's tracks. Clients that
// cannot set headers may pass the session id as a query parameter.
func (s *Server) ListPlaylistTracks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sessionID := r.Header.Get(headerSessionID)
		if sessionID == "" {
			sessionID = q.Get(headerSessionID)
		}

		offset := 0
		if raw := q.Get(queryOffset); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				s.writeError(w, r, errors.Wrapf(errors.ErrInvalidRequest, "offset must be a non-negative integer"))
				return
			}
			offset = n
		}

		page, err := s.services.Playlists.ListPlaylistTracks(r.Context(), sessionID, r.PathValue("playlistId"), offset)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}
