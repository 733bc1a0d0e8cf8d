package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/tracker-core/internal/apperror"
)

// Error codes for failures raised by the server itself. Domain failures use
// the apperror kind as their code.
const (
	errCodeNotFound         = "not_found"
	errCodeMethodNotAllowed = "method_not_allowed"
	errCodeInternal         = "internal"
	errCodeUnavailable      = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error body.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apperror.Body{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeAppError maps err through apperror and logs anything unclassified.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	body := apperror.Response(err)
	if body.Status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	}
	writeJSON(w, body.Status, body)
}
