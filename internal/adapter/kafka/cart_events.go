package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/lumora/storefront-api/internal/cart"
)

const (
	EventCartRecovered  = "cart_recovered"
	EventMutationFailed = "cart_mutation_failed"
)

// CartEvent is the lifecycle record published for downstream consumers
// (analytics lives entirely behind this topic).
type CartEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	CartID    string    `json:"cartId,omitempty"`
	NewCartID string    `json:"newCartId,omitempty"`
	Op        string    `json:"op"`
	ErrorKind string    `json:"errorKind,omitempty"`
	At        time.Time `json:"at"`
}

// EventPublisher implements cart.ResultSink: recoveries and failures become
// events, plain successes stay quiet. Publishing is best-effort.
type EventPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *slog.Logger
}

func NewEventPublisher(producer sarama.SyncProducer, topic string, log *slog.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, topic: topic, log: log}
}

func (p *EventPublisher) Record(_ context.Context, sessionID string, op cart.Op, res cart.MutationResult) {
	ev := CartEvent{
		SessionID: sessionID,
		Op:        string(op),
		At:        time.Now().UTC(),
	}
	switch {
	case res.WasRecovered:
		ev.Type = EventCartRecovered
		ev.NewCartID = res.NewCartID
	case !res.Success:
		ev.Type = EventMutationFailed
		ev.ErrorKind = string(res.FirstKind())
	default:
		return
	}
	if res.Cart != nil {
		ev.CartID = res.Cart.ID
	}

	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("encode cart event", "err", err)
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(sessionID),
		Value: sarama.ByteEncoder(body),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		p.log.Warn("publish cart event", "err", err, "type", ev.Type)
	}
}

var _ cart.ResultSink = (*EventPublisher)(nil)
