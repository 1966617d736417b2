package api

import (
	"encoding/json"
	"net/http"

	"github.com/foxzi/blastry/internal/apperr"
)

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

// sendAppError maps a domain error onto an HTTP status with the
// operator-facing message.
func (s *Server) sendAppError(w http.ResponseWriter, err error) {
	s.sendError(w, statusFromErr(err), apperr.FriendlyMessage(err))
}

func statusFromErr(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindPermissionDenied:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInvariantViolation:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
