package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"pair-quiz-service/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrGameNotFound), errors.Is(err, domain.ErrNoCurrentGame):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotParticipant),
		errors.Is(err, domain.ErrNoActiveGame),
		errors.Is(err, domain.ErrAllQuestionsAnswered),
		errors.Is(err, domain.ErrAlreadyInGame):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAnswerConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal failures from clients.
func publicMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		return http.StatusText(status)
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
