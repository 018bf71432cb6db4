package realtime

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/courtside/livescore/models"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Message — конверт для исходящих websocket-сообщений.
type Message struct {
	Type    string          `json:"type"`
	MatchID string          `json:"match_id"`
	Payload models.Snapshot `json:"payload"`
}

const MessageTypeSnapshot = "MATCH_SNAPSHOT"

// Client связывает подписку хаба с одним websocket-соединением.
type Client struct {
	hub    *Hub
	sub    *Subscription
	conn   *websocket.Conn
	logger *slog.Logger
}

func NewClient(hub *Hub, sub *Subscription, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		hub:    hub,
		sub:    sub,
		conn:   conn,
		logger: logger,
	}
}

// ReadPump читает соединение только ради контроля его жизни: входящие
// сообщения игнорируются, счёт принимается исключительно через HTTP API.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unsubscribe(c.sub)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed",
					slog.String("match_id", c.sub.MatchID()),
					slog.Any("error", err),
				)
			}
			return
		}
	}
}

// WritePump переливает снапшоты из подписки в соединение и поддерживает его
// пингами. Закрытие канала подписки (терминальный матч или дроп за
// медлительность) завершает соединение штатным close-фреймом.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case snap, ok := <-c.sub.Updates():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"))
				return
			}

			payload, err := json.Marshal(Message{
				Type:    MessageTypeSnapshot,
				MatchID: c.sub.MatchID(),
				Payload: snap,
			})
			if err != nil {
				c.logger.Error("failed to marshal snapshot message",
					slog.String("match_id", c.sub.MatchID()),
					slog.Any("error", err),
				)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
