package server

import (
	"context"
	"net/http"
)

type selectionBody struct {
	PlaylistIDs []string `json:"playlistIds"`
}

func writeSelection(w http.ResponseWriter, ids []string) {
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, selectionBody{PlaylistIDs: ids})
}

func (s *Server) GetPreferences() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := s.services.Selection.List(r.Context(), r.Header.Get(headerSessionID))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeSelection(w, ids)
	}
}

func (s *Server) ReplacePreferences() http.HandlerFunc {
	return s.mutateSelection(s.services.Selection.Replace)
}

func (s *Server) AddPreferences() http.HandlerFunc {
	return s.mutateSelection(s.services.Selection.Add)
}

func (s *Server) RemovePreferences() http.HandlerFunc {
	return s.mutateSelection(s.services.Selection.Remove)
}

func (s *Server) ClearPreferences() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.services.Selection.Clear(r.Context(), r.Header.Get(headerSessionID)); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type selectionMutation func(ctx context.Context, sessionID string, playlistIDs []string) ([]string, error)

// mutateSelection decodes {playlistIds}, applies op and answers with the resulting selection.
func (s *Server) mutateSelection(op selectionMutation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body selectionBody
		if err := decodeBody(w, r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}
		ids, err := op(r.Context(), r.Header.Get(headerSessionID), body.PlaylistIDs)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeSelection(w, ids)
	}
}
