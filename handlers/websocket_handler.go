package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/courtside/livescore/realtime"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var errMissingMatchID = errors.New("missing matchID")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: ограничить Origin доменом фронтенда перед продом.
		return true
	},
}

type WebSocketHandler struct {
	hub    *realtime.Hub
	logger *slog.Logger
}

func NewWebSocketHandler(hub *realtime.Hub, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		logger: logger,
	}
}

// ServeWS обрабатывает GET /ws/matches/{matchID}. Подписка оформляется до
// апгрейда: для неизвестного матча клиент получает обычный HTTP 404, а не
// оборванный websocket.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")
	if matchID == "" {
		badRequestResponse(w, errMissingMatchID)
		return
	}

	sub, err := h.hub.Subscribe(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader сам отправил HTTP-ошибку клиенту.
		h.hub.Unsubscribe(sub)
		h.logger.Warn("websocket upgrade failed",
			slog.String("match_id", matchID),
			slog.Any("error", err),
		)
		return
	}

	client := realtime.NewClient(h.hub, sub, conn, h.logger)
	go client.WritePump()
	go client.ReadPump()
}
