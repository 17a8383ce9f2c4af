// Package events publishes order lifecycle events to Kafka for downstream
// consumers (accounting exports, notifications).
package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/tablebill/api/internal/config"
)

type OrderEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	BusinessID uuid.UUID       `json:"business_id"`
	OrderID    uuid.UUID       `json:"order_id"`
	Data       json.RawMessage `json:"data"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewOrderEvent wraps payload in an envelope with a fresh event id.
func NewOrderEvent(eventType string, businessID, orderID uuid.UUID, payload any) (OrderEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return OrderEvent{}, err
	}
	return OrderEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		BusinessID: businessID,
		OrderID:    orderID,
		Data:       data,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// KafkaPublisher writes events keyed by order id, so every event for one
// order lands on the same partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.OrdersTopic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event OrderEvent) error {
	msg, err := toMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("ERROR: publish %s for order %s: %v", event.Type, event.OrderID, err)
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toMessage(event OrderEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.OrderID.String()),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}, nil
}

// NopPublisher drops events; used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, OrderEvent) error { return nil }
