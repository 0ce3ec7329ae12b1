package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/courtside/scorekeeper-server-go/internal/game"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Code     int    `json:"code"`
	Category string `json:"category,omitempty"`
}

// statusFor maps engine error categories onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, game.ErrGameNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errBadCommand):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, game.ErrConfiguration):
		return http.StatusBadRequest, "configuration"
	case errors.Is(err, game.ErrPreconditionFailed):
		return http.StatusUnprocessableEntity, "precondition_failed"
	case errors.Is(err, game.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	}
	return http.StatusInternalServerError, ""
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status, category := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respondJSON(w, status, ErrorResponse{
		Error:    http.StatusText(status),
		Message:  err.Error(),
		Code:     status,
		Category: category,
	})
}
