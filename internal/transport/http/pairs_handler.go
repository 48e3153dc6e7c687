package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"pair-quiz-service/internal/app"
	"pair-quiz-service/internal/logging"
)

// PairsHandler serves the pair quiz REST endpoints.
type PairsHandler struct {
	service *app.PairGameService
	logger  *slog.Logger
}

func NewPairsHandler(service *app.PairGameService, logger *slog.Logger) *PairsHandler {
	return &PairsHandler{service: service, logger: logger}
}

type answerRequest struct {
	Answer *string `json:"answer"`
}

func (h *PairsHandler) Connect(w http.ResponseWriter, r *http.Request) {
	player, ok := PlayerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}
	view, err := h.service.Connect(r.Context(), player)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *PairsHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	player, ok := PlayerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Answer == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"answer\": string}")
		return
	}
	result, err := h.service.SubmitAnswer(r.Context(), player.ID, *req.Answer)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *PairsHandler) Current(w http.ResponseWriter, r *http.Request) {
	player, ok := PlayerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}
	view, err := h.service.CurrentGame(r.Context(), player.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *PairsHandler) ByID(w http.ResponseWriter, r *http.Request) {
	player, ok := PlayerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "game id must be a uuid")
		return
	}
	view, err := h.service.GameByID(r.Context(), id, player.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *PairsHandler) Statistic(w http.ResponseWriter, r *http.Request) {
	player, ok := PlayerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}
	stat, err := h.service.Statistics(r.Context(), player.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stat)
}

func (h *PairsHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Error(h.logger, "request failed", err, logging.FieldMethod, r.Method, logging.FieldPath, r.URL.Path)
	}
	writeError(w, status, publicMessage(err, status))
}
