package repository

import (
	"context"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/reconcile"
)

// SnapshotKind names one of the per-user payment snapshot collections.
type SnapshotKind string

const (
	// SnapshotLocal holds placeholder orders cached on payment success.
	SnapshotLocal SnapshotKind = "local"
	// SnapshotLastPayment holds at most one snapshot of the latest payment.
	SnapshotLastPayment SnapshotKind = "last_payment"
)

// SnapshotStore keeps per-user payment snapshots. A missing collection reads
// as empty, not as an error.
type SnapshotStore interface {
	Get(ctx context.Context, kind SnapshotKind, userID string) ([]models.PaymentSnapshot, error)
	Set(ctx context.Context, kind SnapshotKind, userID string, snapshots []models.PaymentSnapshot) error
	Clear(ctx context.Context, kind SnapshotKind, userID string) error
}

// PendingStore keeps submissions that have been paid for but may not have
// reached the authoritative order system yet.
type PendingStore interface {
	Create(ctx context.Context, sub *models.PendingSubmission) error
	ListByUser(ctx context.Context, userID string) ([]reconcile.Raw, error)
	DeleteByRefs(ctx context.Context, userID string, refs []string) (int64, error)
}

var (
	_ SnapshotStore = (*RedisSnapshotStore)(nil)
	_ SnapshotStore = (*MemorySnapshotStore)(nil)
	_ PendingStore  = (*PostgresPendingStore)(nil)
	_ PendingStore  = (*MemoryPendingStore)(nil)
)
