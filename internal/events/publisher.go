package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/config"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/middleware"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/reconcile"
)

// EventType represents the type of order event.
type EventType string

const (
	EventTypePendingSubmitted EventType = "order.pending_submitted"
	EventTypeOrderReconciled  EventType = "order.reconciled"
)

// OrderEvent is the envelope written to the orders topic.
type OrderEvent struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	OrderID       string            `json:"order_id,omitempty"`
	UserID        string            `json:"user_id"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

// ReconciledPayload lists the pending submissions a reconciliation found
// superseded by remote orders.
type ReconciledPayload struct {
	Refs         []string `json:"refs"`
	Duplicates   int      `json:"duplicates"`
	Placeholders int      `json:"placeholders"`
	Backfilled   int      `json:"backfilled"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes order events to Kafka.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *logging.LoggerV2
}

// NewKafkaPublisher creates a new Kafka-based event publisher.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *logging.LoggerV2) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.OrdersTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaPublisher{
		writer: writer,
		topic:  cfg.OrdersTopic,
		logger: logger,
	}
}

// PublishPendingSubmitted announces a freshly stored pending submission.
func (p *KafkaPublisher) PublishPendingSubmitted(ctx context.Context, sub *models.PendingSubmission) error {
	p.logger.Debug("Publishing pending submitted event", logging.Fields{
		"ref":     sub.Ref,
		"user_id": sub.UserID,
	})

	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}

	event := newEvent(ctx, EventTypePendingSubmitted, sub.Ref, sub.UserID, data)
	event.Metadata["type"] = sub.Type
	return p.publish(ctx, event)
}

// PublishOrderReconciled announces pending submissions that the remote order
// system has caught up with.
func (p *KafkaPublisher) PublishOrderReconciled(ctx context.Context, userID string, refs []string, stats reconcile.MergeStats) error {
	payload := ReconciledPayload{
		Refs:         refs,
		Duplicates:   stats.Duplicates,
		Placeholders: stats.Placeholders,
		Backfilled:   stats.Backfilled,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.publish(ctx, newEvent(ctx, EventTypeOrderReconciled, "", userID, data))
}

func newEvent(ctx context.Context, eventType EventType, orderID, userID string, data []byte) *OrderEvent {
	return &OrderEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		OrderID:       orderID,
		UserID:        userID,
		Data:          data,
		Metadata:      make(map[string]string),
		Timestamp:     time.Now().UTC(),
		CorrelationID: middleware.RequestIDFrom(ctx),
	}
}

func (p *KafkaPublisher) publish(ctx context.Context, event *OrderEvent) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// Keyed by user so one user's events stay ordered on a partition.
	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: eventData,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish event", logging.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
			"user_id":    event.UserID,
			"error":      err.Error(),
		})
		return err
	}

	p.logger.Info("Event published", logging.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"order_id":   event.OrderID,
		"user_id":    event.UserID,
	})
	return nil
}

// Close closes the Kafka writer.
func (p *KafkaPublisher) Close() error {
	p.logger.Info("Closing Kafka publisher")
	return p.writer.Close()
}

// MockEventPublisher records events in memory.
type MockEventPublisher struct {
	mu     sync.Mutex
	Events []*OrderEvent
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{
		Events: make([]*OrderEvent, 0),
	}
}

func (m *MockEventPublisher) PublishPendingSubmitted(ctx context.Context, sub *models.PendingSubmission) error {
	m.record(&OrderEvent{Type: EventTypePendingSubmitted, OrderID: sub.Ref, UserID: sub.UserID})
	return nil
}

func (m *MockEventPublisher) PublishOrderReconciled(ctx context.Context, userID string, refs []string, stats reconcile.MergeStats) error {
	m.record(&OrderEvent{Type: EventTypeOrderReconciled, UserID: userID})
	return nil
}

func (m *MockEventPublisher) record(e *OrderEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, e)
}

// Types returns the recorded event types in order.
func (m *MockEventPublisher) Types() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]EventType, 0, len(m.Events))
	for _, e := range m.Events {
		out = append(out, e.Type)
	}
	return out
}
