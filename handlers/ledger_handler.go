package handlers

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/courtside/livescore/middleware"
	"github.com/courtside/livescore/services"
)

const webhookTokenHeader = "X-Webhook-Token"

type LedgerHandler struct {
	ledger       services.LedgerService
	webhookToken string
}

func NewLedgerHandler(ledger services.LedgerService, webhookToken string) *LedgerHandler {
	return &LedgerHandler{
		ledger:       ledger,
		webhookToken: webhookToken,
	}
}

// Balance обрабатывает GET /ledger/balance.
func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w)
		return
	}

	credits, err := h.ledger.Balance(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jsonResponse{"user_id": userID, "credits": credits})
}

// Transactions обрабатывает GET /ledger/transactions?limit=&offset=.
func (h *LedgerHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txns, err := h.ledger.Transactions(r.Context(), userID, limit, offset)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jsonResponse{"transactions": txns})
}

// PaymentWebhook обрабатывает POST /ledger/webhook/payment — синхронный путь
// доставки подтверждений платёжного шлюза (асинхронный идёт через RabbitMQ).
// Повторная доставка одного external_ref безопасна: зачисление идемпотентно.
func (h *LedgerHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(webhookTokenHeader)
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.webhookToken)) != 1 {
		unauthorizedResponse(w)
		return
	}

	var input struct {
		UserID      int    `json:"user_id"`
		Amount      int64  `json:"amount"`
		ExternalRef string `json:"external_ref"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	txnID, err := h.ledger.Credit(r.Context(), input.UserID, input.Amount, input.ExternalRef)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jsonResponse{"transaction_id": txnID})
}
