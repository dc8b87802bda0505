package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"medroom/internal/hub"
	"medroom/pkg/types"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("encode response failed")
	}
}

// sendError writes the consistent error body
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, types.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, types.ErrModelUnavailable), errors.Is(err, hub.ErrHubNotRunning):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sendFailure reports err with a client-safe message.
// FUNCTIONAL DISCOVERY: Only taxonomy errors carry their text to clients
func (s *Server) sendFailure(w http.ResponseWriter, err error, fallback string) {
	code := statusFor(err)
	message := fallback
	switch code {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusForbidden:
		message = err.Error()
	case http.StatusInternalServerError:
		s.logger.Error().Err(err).Msg(fallback)
	}
	s.sendError(w, message, code)
}
