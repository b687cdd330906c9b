package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/config"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/reconcile"
)

// PaymentEventType represents the type of payment event.
type PaymentEventType string

const (
	PaymentEventCompleted PaymentEventType = "payment.completed"
	PaymentEventFailed    PaymentEventType = "payment.failed"
	PaymentEventRefunded  PaymentEventType = "payment.refunded"
)

// PaymentEvent represents a payment-related event. Data carries the checkout
// payload: amount, treatment and items in whatever shape the checkout sent.
type PaymentEvent struct {
	ID        string           `json:"id"`
	Type      PaymentEventType `json:"type"`
	PaymentID string           `json:"payment_id"`
	OrderID   string           `json:"order_id"`
	UserID    string           `json:"user_id"`
	Status    string           `json:"status"`
	Data      json.RawMessage  `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
}

// PaymentRecorder stores what a user has just paid for.
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, userID string, snap models.PaymentSnapshot) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConsumer consumes payment events from Kafka.
type KafkaConsumer struct {
	reader   messageReader
	payments PaymentRecorder
	logger   *logging.LoggerV2
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewKafkaConsumer creates a new Kafka-based payment event consumer.
func NewKafkaConsumer(cfg config.KafkaConfig, payments PaymentRecorder, logger *logging.LoggerV2) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.PaymentsTopic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})

	return &KafkaConsumer{
		reader:   reader,
		payments: payments,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start consumes until ctx is cancelled or Stop is called.
func (c *KafkaConsumer) Start(ctx context.Context) error {
	c.logger.Info("Starting Kafka consumer")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			c.logger.Info("Kafka consumer stopped")
			return nil
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				c.logger.Error("Failed to read message", logging.Fields{"error": err.Error()})
				continue
			}

			c.handleMessage(ctx, msg)
		}
	}
}

// Stop stops the consumer. It is safe to call more than once.
func (c *KafkaConsumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.reader.Close()
	})
}

func (c *KafkaConsumer) handleMessage(ctx context.Context, msg kafka.Message) {
	c.logger.Debug("Received message", logging.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	var event PaymentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Error("Failed to unmarshal event", logging.Fields{"error": err.Error()})
		return
	}

	switch event.Type {
	case PaymentEventCompleted:
		c.handlePaymentCompleted(ctx, &event)
	default:
		c.logger.Debug("Ignoring event type", logging.Fields{"type": event.Type})
	}
}

func (c *KafkaConsumer) handlePaymentCompleted(ctx context.Context, event *PaymentEvent) {
	c.logger.Info("Handling payment completed event", logging.Fields{
		"payment_id": event.PaymentID,
		"order_id":   event.OrderID,
		"user_id":    event.UserID,
	})

	if event.UserID == "" {
		c.logger.Warn("Payment event without user id", logging.Fields{"event_id": event.ID})
		return
	}

	if err := c.payments.RecordPayment(ctx, event.UserID, SnapshotFromEvent(event)); err != nil {
		c.logger.Error("Failed to record payment", logging.Fields{
			"order_id": event.OrderID,
			"user_id":  event.UserID,
			"error":    err.Error(),
		})
	}
}

// SnapshotFromEvent builds a payment snapshot from a payment.completed event.
// Missing or malformed data yields a snapshot with only what the envelope has.
func SnapshotFromEvent(event *PaymentEvent) models.PaymentSnapshot {
	data := reconcile.DecodeRaw(event.Data)

	snap := models.PaymentSnapshot{
		Reference: event.OrderID,
		CreatedAt: event.Timestamp,
	}
	if snap.Reference == "" {
		if ref, ok := data["reference"].(string); ok {
			snap.Reference = ref
		}
	}

	if v, ok := data["amountMinor"]; ok {
		snap.AmountMinor = reconcile.MinorFromMinorField(v)
	} else if v, ok := data["amount"]; ok {
		snap.AmountMinor = reconcile.ToMinor(v)
	}
	if treatment, ok := data["treatment"].(string); ok {
		snap.Treatment = treatment
	}

	for _, rec := range reconcile.FindItemRecords(data) {
		snap.Items = append(snap.Items, rec)
	}
	return snap
}
