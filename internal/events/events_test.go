package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/middleware"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/reconcile"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newTestPublisher(w *fakeWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: "orders", logger: logging.NewLoggerV2("publisher-test")}
}

func TestPublishPendingSubmitted(t *testing.T) {
	w := &fakeWriter{}
	p := newTestPublisher(w)
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")

	err := p.PublishPendingSubmitted(ctx, &models.PendingSubmission{Ref: "P1", UserID: "user-1", Type: "treatment", AmountMinor: 100})

	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "user-1", string(w.msgs[0].Key))

	var event OrderEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	assert.Equal(t, EventTypePendingSubmitted, event.Type)
	assert.Equal(t, "P1", event.OrderID)
	assert.Equal(t, "req-1", event.CorrelationID)
	assert.Equal(t, "treatment", event.Metadata["type"])
	assert.NotEmpty(t, event.ID)

	var sub models.PendingSubmission
	require.NoError(t, json.Unmarshal(event.Data, &sub))
	assert.Equal(t, int64(100), sub.AmountMinor)
}

func TestPublishOrderReconciled(t *testing.T) {
	w := &fakeWriter{}
	p := newTestPublisher(w)

	err := p.PublishOrderReconciled(context.Background(), "user-1",
		[]string{"A", "B"}, reconcile.MergeStats{Duplicates: 2, Placeholders: 1})

	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	var event OrderEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	assert.Equal(t, EventTypeOrderReconciled, event.Type)

	var payload ReconciledPayload
	require.NoError(t, json.Unmarshal(event.Data, &payload))
	assert.Equal(t, []string{"A", "B"}, payload.Refs)
	assert.Equal(t, 2, payload.Duplicates)
	assert.Equal(t, 1, payload.Placeholders)
}

func TestPublish_WriterError(t *testing.T) {
	p := newTestPublisher(&fakeWriter{err: errors.New("broker down")})

	err := p.PublishOrderReconciled(context.Background(), "user-1", nil, reconcile.MergeStats{})

	assert.Error(t, err)
}

type fakeRecorder struct {
	mu     sync.Mutex
	userID string
	snaps  []models.PaymentSnapshot
}

func (r *fakeRecorder) RecordPayment(_ context.Context, userID string, snap models.PaymentSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userID = userID
	r.snaps = append(r.snaps, snap)
	return nil
}

type fakeReader struct {
	msgs []kafka.Message
}

func (r *fakeReader) ReadMessage(context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) Close() error { return nil }

func paymentMessage(t *testing.T, event PaymentEvent) kafka.Message {
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: data}
}

func TestConsumer_RecordsCompletedPayments(t *testing.T) {
	ts := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	recorder := &fakeRecorder{}
	reader := &fakeReader{msgs: []kafka.Message{
		paymentMessage(t, PaymentEvent{
			ID:        "evt-1",
			Type:      PaymentEventCompleted,
			OrderID:   "REF1",
			UserID:    "user-1",
			Timestamp: ts,
			Data:      json.RawMessage(`{"amount":"169.99","treatment":"Mounjaro","items":[{"name":"Mounjaro 2.5mg","qty":1}]}`),
		}),
		paymentMessage(t, PaymentEvent{ID: "evt-2", Type: PaymentEventRefunded, OrderID: "REF0", UserID: "user-1"}),
		paymentMessage(t, PaymentEvent{ID: "evt-3", Type: PaymentEventCompleted, OrderID: "REF2"}),
		{Value: []byte("not json")},
	}}
	c := &KafkaConsumer{reader: reader, payments: recorder, logger: logging.NewLoggerV2("consumer-test"), stopCh: make(chan struct{})}

	err := c.Start(context.Background())

	require.NoError(t, err)
	require.Len(t, recorder.snaps, 1)
	snap := recorder.snaps[0]
	assert.Equal(t, "user-1", recorder.userID)
	assert.Equal(t, "REF1", snap.Reference)
	assert.Equal(t, int64(16999), snap.AmountMinor)
	assert.Equal(t, "Mounjaro", snap.Treatment)
	assert.True(t, ts.Equal(snap.CreatedAt))
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "Mounjaro 2.5mg", snap.Items[0]["name"])
}

func TestConsumer_StopIsIdempotent(t *testing.T) {
	c := &KafkaConsumer{reader: &fakeReader{}, logger: logging.NewLoggerV2("consumer-test"), stopCh: make(chan struct{})}

	c.Stop()
	c.Stop()

	assert.NoError(t, c.Start(context.Background()))
}

func TestSnapshotFromEvent_Fallbacks(t *testing.T) {
	snap := SnapshotFromEvent(&PaymentEvent{Data: json.RawMessage(`{"reference":"REF9","amountMinor":2999}`)})

	assert.Equal(t, "REF9", snap.Reference)
	assert.Equal(t, int64(2999), snap.AmountMinor)
	assert.Empty(t, snap.Items)

	empty := SnapshotFromEvent(&PaymentEvent{Data: json.RawMessage(`garbage`)})
	assert.Zero(t, empty.AmountMinor)
}

func TestMockEventPublisher(t *testing.T) {
	m := NewMockEventPublisher()

	require.NoError(t, m.PublishPendingSubmitted(context.Background(), &models.PendingSubmission{Ref: "P1"}))
	require.NoError(t, m.PublishOrderReconciled(context.Background(), "u", nil, reconcile.MergeStats{}))

	assert.Equal(t, []EventType{EventTypePendingSubmitted, EventTypeOrderReconciled}, m.Types())
}
