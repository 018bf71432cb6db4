package handlers

import (
	"net/http"

	"github.com/courtside/livescore/models"
	"github.com/courtside/livescore/services"
	"github.com/go-chi/chi/v5"
)

type ScoreHandler struct {
	scores services.ScoreService
}

func NewScoreHandler(scores services.ScoreService) *ScoreHandler {
	return &ScoreHandler{scores: scores}
}

// ApplyDelta обрабатывает POST /matches/{matchID}/score.
func (h *ScoreHandler) ApplyDelta(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")

	var input struct {
		Side  string `json:"side"`
		Delta int    `json:"delta"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	snap, err := h.scores.ApplyDelta(r.Context(), matchID, models.Side(input.Side), input.Delta)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jsonResponse{"match": snap})
}

// GetSnapshot обрабатывает GET /matches/{matchID}.
func (h *ScoreHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")

	snap, err := h.scores.GetSnapshot(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jsonResponse{"match": snap})
}

// Cancel обрабатывает POST /matches/{matchID}/cancel.
func (h *ScoreHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")

	snap, err := h.scores.CancelMatch(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jsonResponse{"match": snap})
}
