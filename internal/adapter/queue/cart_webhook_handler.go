package queue

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// CartRefresher re-reads the authoritative cart for whichever session holds
// the given remote cart id (implemented by the session registry).
type CartRefresher interface {
	RefreshCart(ctx context.Context, cartID string) error
}

// CartWebhookMsg is the platform webhook as relayed onto the bus by the
// webhook bridge.
type CartWebhookMsg struct {
	Topic  string `json:"topic"` // e.g. "cart.updated"
	CartID string `json:"cartId"`
}

// CartWebhookHandler refreshes locally cached carts when the platform reports
// a change this process did not make (another tab, an expiry sweep).
type CartWebhookHandler struct {
	refresher CartRefresher
	log       *slog.Logger
}

func NewCartWebhookHandler(refresher CartRefresher, log *slog.Logger) *CartWebhookHandler {
	return &CartWebhookHandler{refresher: refresher, log: log}
}

// HandleCartUpdated is intended for the JSON adapter (queue.JSONHandler[CartWebhookMsg]).
func (h *CartWebhookHandler) HandleCartUpdated(ctx context.Context, msg CartWebhookMsg) error {
	if msg.CartID == "" {
		h.log.Warn("cart webhook without cart id", "topic", msg.Topic)
		return nil // poison-safe: nothing to retry
	}
	return h.refresher.RefreshCart(ctx, msg.CartID)
}

// Declare sets up the webhook exchange, queue, and binding once at startup.
func Declare(ch *amqp.Channel, exchange, queueName, routingKey string) error {
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(
		q.Name,
		routingKey,
		exchange,
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	return nil
}
