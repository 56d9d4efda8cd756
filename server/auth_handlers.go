package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-playlist-gateway/auth"
	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
)

const maxBodyBytes = 64 << 10

type startAuthRequest struct {
	Scopes []string `json:"scopes"`
}

// decodeBody reads a JSON request body into out.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return errors.Wrapf(errors.ErrInvalidRequest, "malformed JSON body")
	}
	return nil
}

// StartAuth begins an authorization and returns the provider URL to open.
func (s *Server) StartAuth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startAuthRequest
		if err := decodeBody(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		result, err := s.services.Auth.StartAuth(r.Context(), req.Scopes)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// Callback completes the authorization and redirects to the app's deep link.
func (s *Server) Callback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		device := r.Header.Get(headerDeviceInfo)
		if device == "" {
			device = q.Get(queryDevice)
		}

		sessionID, err := s.services.Auth.HandleCallback(r.Context(), q.Get("code"), q.Get("state"), device)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, s.services.Auth.DeepLink(sessionID), http.StatusFound)
	}
}

// Logout ends the session. Logging out twice is not an error.
func (s *Server) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.services.Logout.Logout(r.Context(), r.Header.Get(headerSessionID))
		if err != nil && !auth.IsAlreadyLoggedOut(err) {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
