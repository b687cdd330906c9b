package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/clients"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/config"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/reconcile"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/repository"
)

const defaultSubmissionType = "order"

// EventPublisher announces order lifecycle events.
type EventPublisher interface {
	PublishPendingSubmitted(ctx context.Context, sub *models.PendingSubmission) error
	PublishOrderReconciled(ctx context.Context, userID string, refs []string, stats reconcile.MergeStats) error
}

// ReconcileService builds a user's order list from the remote order system,
// the pending store and the local snapshot cache.
type ReconcileService struct {
	remote     clients.RemoteOrderClient
	pending    repository.PendingStore
	snapshots  repository.SnapshotStore
	publisher  EventPublisher
	normalizer *reconcile.Normalizer
	metrics    *metrics.Metrics
	config     *config.Config
	group      singleflight.Group
	mu         sync.Mutex
	flights    map[string]*flight
	logger     *logging.LoggerV2
}

// flight is the context of one shared reconciliation. It is cancelled only
// once every caller waiting on it has gone away.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// maxSharedRetries bounds how often a caller restarts after joining a run that
// every earlier caller abandoned.
const maxSharedRetries = 3

// NewReconcileService creates a reconcile service. pending and publisher may
// be nil when the pending store or order events are disabled.
func NewReconcileService(
	remote clients.RemoteOrderClient,
	pending repository.PendingStore,
	snapshots repository.SnapshotStore,
	publisher EventPublisher,
	m *metrics.Metrics,
	cfg *config.Config,
) *ReconcileService {
	return &ReconcileService{
		remote:     remote,
		pending:    pending,
		snapshots:  snapshots,
		publisher:  publisher,
		normalizer: reconcile.NewNormalizer(reconcile.WithPaidAwaitsApproval(cfg.Features.AssumePaidAwaitsApproval)),
		metrics:    m,
		config:     cfg,
		flights:    make(map[string]*flight),
		logger:     logging.NewLoggerV2("reconcile-service"),
	}
}

// sources is one read of every order source. A failed read leaves its slice empty.
type sources struct {
	remote      []reconcile.Raw
	pending     []reconcile.Raw
	local       []models.PaymentSnapshot
	lastPayment *models.PaymentSnapshot
}

// Reconcile returns the user's merged order list, newest first. Concurrent
// calls for the same user share one reconciliation.
func (s *ReconcileService) Reconcile(ctx context.Context, userID string) ([]models.Order, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		orders, shared, err := s.shared(ctx, userID)
		if errors.Is(err, context.Canceled) && ctx.Err() == nil && attempt < maxSharedRetries {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !shared {
			return orders, nil
		}
		out := make([]models.Order, len(orders))
		for i := range orders {
			out[i] = orders[i].Clone()
		}
		return out, nil
	}
}

// shared joins or starts the reconciliation for userID. The run outlives any
// single caller and is abandoned only when all of its callers have left.
func (s *ReconcileService) shared(ctx context.Context, userID string) ([]models.Order, bool, error) {
	f := s.join(ctx, userID)
	defer s.leave(userID, f)

	ch := s.group.DoChan(userID, func() (interface{}, error) {
		return s.reconcile(f.ctx, userID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]models.Order), res.Shared, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (s *ReconcileService) join(ctx context.Context, userID string) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flights[userID]
	if !ok {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: runCtx, cancel: cancel}
		s.flights[userID] = f
	}
	f.waiters++
	return f
}

func (s *ReconcileService) leave(userID string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if s.flights[userID] == f {
		delete(s.flights, userID)
	}
}

func (s *ReconcileService) reconcile(ctx context.Context, userID string) ([]models.Order, error) {
	src := s.fetch(ctx, userID)

	remote := s.normalizeAll(src.remote, models.OriginRemote)
	pending := s.normalizeAll(src.pending, models.OriginPending)
	local := make([]models.Order, 0, len(src.local))
	for _, snap := range src.local {
		local = append(local, s.normalizer.SnapshotOrder(snap, models.OriginLocal))
	}

	merged, stats := reconcile.MergeWithStats(remote, pending, local)

	consumed := false
	if src.lastPayment != nil {
		merged, consumed = reconcile.Enrich(merged, s.normalizer.SnapshotOrder(*src.lastPayment, models.OriginLocal))
	}

	s.metrics.Merges.Inc()
	s.metrics.MergedOrders.Observe(float64(len(merged)))
	s.metrics.Duplicates.Add(float64(stats.Duplicates))
	s.metrics.PlaceholdersPruned.Add(float64(stats.Placeholders))
	s.metrics.Backfills.Add(float64(stats.Backfilled))

	s.logger.Info("Orders reconciled", logging.Fields{
		"user_id":      userID,
		"remote":       len(remote),
		"pending":      len(pending),
		"local":        len(local),
		"merged":       len(merged),
		"duplicates":   stats.Duplicates,
		"placeholders": stats.Placeholders,
		"backfilled":   stats.Backfilled,
	})

	// Once every caller has gone away no stored state may change.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if consumed {
		s.metrics.SnapshotsConsumed.Inc()
		if err := s.snapshots.Clear(ctx, repository.SnapshotLastPayment, userID); err != nil {
			s.logger.Error("Failed to clear last payment snapshot", logging.Fields{"user_id": userID, "error": err.Error()})
		}
	}
	if len(remote) > 0 {
		s.pruneLocal(ctx, userID, src.local, remote)
		s.prunePending(ctx, userID, pending, remote, stats)
	}
	return merged, nil
}

// fetch reads all sources concurrently. Every failure is logged, counted and
// degraded to an empty source.
func (s *ReconcileService) fetch(ctx context.Context, userID string) sources {
	var src sources
	var g errgroup.Group

	g.Go(func() error {
		raw, err := s.remote.ListOrders(ctx, userID)
		if err != nil {
			s.fetchFailed(metrics.SourceRemote, userID, err)
			return nil
		}
		src.remote = raw
		return nil
	})

	if s.pending != nil {
		g.Go(func() error {
			raw, err := s.pending.ListByUser(ctx, userID)
			if err != nil {
				s.fetchFailed(metrics.SourcePending, userID, err)
				return nil
			}
			src.pending = raw
			return nil
		})
	}

	g.Go(func() error {
		local, err := s.snapshots.Get(ctx, repository.SnapshotLocal, userID)
		if err != nil {
			s.fetchFailed(metrics.SourceLocal, userID, err)
			return nil
		}
		src.local = local

		last, err := s.snapshots.Get(ctx, repository.SnapshotLastPayment, userID)
		if err != nil {
			s.fetchFailed(metrics.SourceLocal, userID, err)
			return nil
		}
		if len(last) > 0 {
			src.lastPayment = &last[0]
		}
		return nil
	})

	_ = g.Wait()
	return src
}

func (s *ReconcileService) fetchFailed(source, userID string, err error) {
	s.metrics.FetchFailures.WithLabelValues(source).Inc()
	s.logger.Error("Order source unavailable, continuing without it", logging.Fields{
		"source":  source,
		"user_id": userID,
		"error":   err.Error(),
	})
}

func (s *ReconcileService) normalizeAll(raws []reconcile.Raw, origin models.Origin) []models.Order {
	out := make([]models.Order, 0, len(raws))
	for _, raw := range raws {
		out = append(out, s.normalizer.Normalize(raw, origin))
	}
	return out
}

// pruneLocal drops placeholders and snapshots the remote system now reports.
func (s *ReconcileService) pruneLocal(ctx context.Context, userID string, local []models.PaymentSnapshot, remote []models.Order) {
	if len(local) == 0 {
		return
	}
	remoteIDs := idSet(remote)

	kept := make([]models.PaymentSnapshot, 0, len(local))
	for _, snap := range local {
		if snap.Reference == "" || strings.HasPrefix(snap.Reference, models.TempIDPrefix) || remoteIDs[snap.Reference] {
			continue
		}
		kept = append(kept, snap)
	}
	if len(kept) == len(local) {
		return
	}

	if err := s.snapshots.Set(ctx, repository.SnapshotLocal, userID, kept); err != nil {
		s.logger.Error("Failed to prune local snapshots", logging.Fields{"user_id": userID, "error": err.Error()})
		return
	}
	s.logger.Debug("Local snapshots pruned", logging.Fields{
		"user_id": userID,
		"removed": len(local) - len(kept),
	})
}

// prunePending deletes pending submissions whose remote counterpart already
// carries real line items.
func (s *ReconcileService) prunePending(ctx context.Context, userID string, pending, remote []models.Order, stats reconcile.MergeStats) {
	if s.pending == nil || len(pending) == 0 {
		return
	}

	complete := make(map[string]bool, len(remote))
	for i := range remote {
		if remote[i].HasRealItems() {
			complete[remote[i].ID] = true
		}
	}

	var refs []string
	for _, o := range pending {
		if complete[o.ID] {
			refs = append(refs, o.ID)
		}
	}
	if len(refs) == 0 {
		return
	}

	deleted, err := s.pending.DeleteByRefs(ctx, userID, refs)
	if err != nil {
		s.logger.Error("Failed to prune pending submissions", logging.Fields{"user_id": userID, "error": err.Error()})
		return
	}
	s.metrics.PendingPruned.Add(float64(deleted))

	if s.publisher != nil {
		if err := s.publisher.PublishOrderReconciled(ctx, userID, refs, stats); err != nil {
			s.logger.Warn("Failed to publish reconciled event", logging.Fields{"user_id": userID, "error": err.Error()})
		}
	}
}

// AwaitOrder re-runs reconciliation until the remote system reports ref with
// real items or the configured attempts run out.
func (s *ReconcileService) AwaitOrder(ctx context.Context, userID, ref string) (reconcile.PollResult, error) {
	if err := ValidateUserID(userID); err != nil {
		return reconcile.PollResult{}, err
	}
	if err := ValidateReference(ref); err != nil {
		return reconcile.PollResult{}, err
	}

	policy := reconcile.RetryPolicy{
		MaxAttempts: s.config.Poll.MaxAttempts,
		Interval:    s.config.Poll.Interval,
		IsFinal:     reconcile.IsAuthoritative(ref),
	}

	res, err := policy.Poll(ctx, func(ctx context.Context) ([]models.Order, error) {
		return s.Reconcile(ctx, userID)
	})
	s.metrics.PollAttempts.Observe(float64(res.Attempts))

	s.logger.Info("Checkout poll finished", logging.Fields{
		"user_id":  userID,
		"ref":      ref,
		"attempts": res.Attempts,
		"final":    res.Final,
	})
	return res, err
}

// SubmitPending normalizes a freeform checkout payload, stores it as a pending
// submission and announces it.
func (s *ReconcileService) SubmitPending(ctx context.Context, userID string, raw reconcile.Raw) (*models.PendingSubmission, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	order := s.normalizer.Normalize(raw, models.OriginPending)

	submissionType := defaultSubmissionType
	if t, ok := raw["type"].(string); ok && strings.TrimSpace(t) != "" {
		submissionType = strings.TrimSpace(t)
	}
	sub := models.NewPendingSubmission(userID, submissionType, &order)

	if s.pending != nil && s.config.Features.EnablePendingStore {
		if err := s.pending.Create(ctx, sub); err != nil {
			return nil, fmt.Errorf("store pending submission %s: %w", sub.Ref, err)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishPendingSubmitted(ctx, sub); err != nil {
			s.logger.Warn("Failed to publish pending submitted event", logging.Fields{
				"ref":   sub.Ref,
				"error": err.Error(),
			})
		}
	}

	s.logger.Info("Pending submission accepted", logging.Fields{
		"ref":          sub.Ref,
		"user_id":      userID,
		"amount_minor": sub.AmountMinor,
		"items":        len(sub.Items),
	})
	return sub, nil
}

func idSet(orders []models.Order) map[string]bool {
	ids := make(map[string]bool, len(orders))
	for i := range orders {
		ids[orders[i].ID] = true
	}
	return ids
}
