package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/courtside/livescore/middleware"
	"github.com/courtside/livescore/services"
)

// TournamentCreator — шаг создания турнира во внешнем административном
// сервисе, выполняемый внутри саги списания взноса.
type TournamentCreator interface {
	CreateTournament(ctx context.Context, organizerID int, name string) (string, error)
}

type TournamentHandler struct {
	ledger services.LedgerService
	admin  TournamentCreator
	fee    int64
}

func NewTournamentHandler(ledger services.LedgerService, admin TournamentCreator, fee int64) *TournamentHandler {
	return &TournamentHandler{
		ledger: ledger,
		admin:  admin,
		fee:    fee,
	}
}

// Create обрабатывает POST /tournaments: взнос списывается до создания
// записи, неудачное создание компенсируется refund-транзакцией.
func (h *TournamentHandler) Create(w http.ResponseWriter, r *http.Request) {
	organizerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w)
		return
	}

	var input struct {
		Name string `json:"name"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}
	if input.Name == "" {
		badRequestResponse(w, errors.New("tournament name is required"))
		return
	}

	var tournamentID string
	err := h.ledger.ChargeTournamentFee(r.Context(), organizerID, h.fee, func(ctx context.Context) error {
		id, createErr := h.admin.CreateTournament(ctx, organizerID, input.Name)
		if createErr != nil {
			return createErr
		}
		tournamentID = id
		return nil
	})
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, jsonResponse{"tournament_id": tournamentID, "fee_charged": h.fee})
}
