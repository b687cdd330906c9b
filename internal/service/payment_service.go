package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/repository"
)

// maxLocalSnapshots caps the per-user placeholder cache.
const maxLocalSnapshots = 3

// PaymentService records payment successes into the snapshot store.
type PaymentService struct {
	snapshots repository.SnapshotStore
	now       func() time.Time
	logger    *logging.LoggerV2
}

// NewPaymentService creates a new payment service.
func NewPaymentService(snapshots repository.SnapshotStore) *PaymentService {
	return &PaymentService{
		snapshots: snapshots,
		now:       time.Now,
		logger:    logging.NewLoggerV2("payment-service"),
	}
}

// RecordPayment stores snap as the user's last payment and prepends it to the
// local placeholder cache, replacing any entry with the same reference. A
// snapshot without a reference gets a temporary one.
func (s *PaymentService) RecordPayment(ctx context.Context, userID string, snap models.PaymentSnapshot) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	if err := ValidateSnapshot(&snap); err != nil {
		return err
	}

	if snap.Reference == "" {
		snap.Reference = models.TempIDPrefix + uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = s.now().UTC()
	}

	if err := s.snapshots.Set(ctx, repository.SnapshotLastPayment, userID, []models.PaymentSnapshot{snap}); err != nil {
		s.logger.Error("Failed to store last payment snapshot", logging.Fields{
			"user_id":   userID,
			"reference": snap.Reference,
			"error":     err.Error(),
		})
		return err
	}

	local, err := s.snapshots.Get(ctx, repository.SnapshotLocal, userID)
	if err != nil {
		s.logger.Warn("Could not read local snapshots, starting a new cache", logging.Fields{
			"user_id": userID,
			"error":   err.Error(),
		})
		local = nil
	}

	updated := make([]models.PaymentSnapshot, 0, maxLocalSnapshots)
	updated = append(updated, snap)
	for _, existing := range local {
		if len(updated) == maxLocalSnapshots {
			break
		}
		if existing.Reference == snap.Reference {
			continue
		}
		updated = append(updated, existing)
	}

	if err := s.snapshots.Set(ctx, repository.SnapshotLocal, userID, updated); err != nil {
		s.logger.Error("Failed to store local snapshot", logging.Fields{
			"user_id":   userID,
			"reference": snap.Reference,
			"error":     err.Error(),
		})
		return err
	}

	s.logger.Info("Payment recorded", logging.Fields{
		"user_id":      userID,
		"reference":    snap.Reference,
		"amount_minor": snap.AmountMinor,
		"items":        len(snap.Items),
	})
	return nil
}
