package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
)

const contentTypeJSON = "application/json; charset=utf-8"

// APIError is the body of every non-2xx API response.
type APIError struct {
	Code          string    `json:"code"`
	Message       string    `json:"message"`
	CorrelationID string    `json:"correlationId"`
	Timestamp     time.Time `json:"timestamp"`
}

type errorMapping struct {
	target error
	code   string
	status int
}

var errorMappings = []errorMapping{
	{errors.ErrInvalidScope, "invalid_scope", http.StatusBadRequest},
	{errors.ErrUnknownOrExpiredState, "invalid_state", http.StatusBadRequest},
	{errors.ErrProviderExchange, "token_exchange_failed", http.StatusBadGateway},
	{errors.ErrInvalidSession, "invalid_session", http.StatusUnauthorized},
	{errors.ErrReauthRequired, "reauth_required", http.StatusUnauthorized},
	{errors.ErrInvalidPageToken, "invalid_page_token", http.StatusBadRequest},
	{errors.ErrProviderTimeout, "provider_timeout", http.StatusGatewayTimeout},
	{errors.ErrProviderUnavailable, "provider_unavailable", http.StatusServiceUnavailable},
	{errors.ErrNotFound, "not_found", http.StatusNotFound},
	{errors.ErrInvalidRequest, "bad_request", http.StatusBadRequest},
}

// classify returns the API code and HTTP status for err.
func classify(err error) (string, int) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.code, m.status
		}
	}
	return "internal", http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, status := classify(err)

	// Internal details stay in the log.
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("correlation_id", correlationID(r)).Msg("request failed")
		message = "internal error"
	}

	writeJSON(w, status, APIError{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID(r),
		Timestamp:     s.nowTime().UTC(),
	})
}
