// Package payments принимает подтверждения платёжного шлюза из RabbitMQ.
// Канал доставки ненадёжен и подтверждения будут приходить повторно —
// дедупликация по external_ref выполняется леджером, consumer лишь
// доставляет сообщения.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/courtside/livescore/services"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	prefetchCount = 8
	handleTimeout = 30 * time.Second
)

// Confirmation — тело сообщения от платёжного шлюза.
type Confirmation struct {
	UserID      int    `json:"user_id"`
	Amount      int64  `json:"amount"`
	ExternalRef string `json:"external_ref"`
}

// Crediter — единственное, что consumer требует от леджера.
type Crediter interface {
	Credit(ctx context.Context, userID int, amount int64, externalRef string) (string, error)
}

type Consumer struct {
	queue  string
	ledger Crediter
	logger *slog.Logger

	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewConsumer(url, queue string, ledger Crediter, logger *slog.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &Consumer{
		queue:   queue,
		ledger:  ledger,
		logger:  logger,
		conn:    conn,
		channel: ch,
	}, nil
}

// Run потребляет подтверждения до отмены контекста. Ack только после того,
// как леджер принял (или идемпотентно схлопнул) зачисление.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("payment confirmation consumer started", slog.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("payment delivery channel closed")
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	var conf Confirmation
	if err := json.Unmarshal(msg.Body, &conf); err != nil {
		c.logger.Error("malformed payment confirmation",
			slog.String("body", string(msg.Body)),
			slog.Any("error", err),
		)
		// Битое сообщение не станет валидным от повторной доставки.
		_ = msg.Nack(false, false)
		return
	}

	txnID, err := c.ledger.Credit(ctx, conf.UserID, conf.Amount, conf.ExternalRef)
	if err != nil {
		if isPermanent(err) {
			c.logger.Error("rejecting unprocessable payment confirmation",
				slog.Int("user_id", conf.UserID),
				slog.String("external_ref", conf.ExternalRef),
				slog.Any("error", err),
			)
			_ = msg.Nack(false, false)
			return
		}
		c.logger.Warn("failed to apply payment confirmation, requeueing",
			slog.Int("user_id", conf.UserID),
			slog.String("external_ref", conf.ExternalRef),
			slog.Any("error", err),
		)
		_ = msg.Nack(false, true)
		return
	}

	c.logger.Info("payment confirmation applied",
		slog.Int("user_id", conf.UserID),
		slog.String("external_ref", conf.ExternalRef),
		slog.String("transaction_id", txnID),
	)
	_ = msg.Ack(false)
}

// isPermanent отличает сообщения, которые нельзя обработать ни при каком
// повторе, от временных сбоев (БД недоступна и т.п.).
func isPermanent(err error) bool {
	return errors.Is(err, services.ErrInvalidAmount) ||
		errors.Is(err, services.ErrExternalRefRequired) ||
		errors.Is(err, services.ErrAccountNotFound)
}

func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.logger.Info("payment confirmation consumer closed")
}
