package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/reconcile"
)

// MemorySnapshotStore is an in-process SnapshotStore for single-instance
// deployments and tests.
type MemorySnapshotStore struct {
	mu   sync.RWMutex
	data map[string][]models.PaymentSnapshot
}

// NewMemorySnapshotStore creates an empty in-memory snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	logging.Infof("Using in-memory snapshot store")
	return &MemorySnapshotStore{data: make(map[string][]models.PaymentSnapshot)}
}

func (s *MemorySnapshotStore) Get(_ context.Context, kind SnapshotKind, userID string) ([]models.PaymentSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.data[snapshotKey(kind, userID)]
	if len(stored) == 0 {
		return nil, nil
	}
	out := make([]models.PaymentSnapshot, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *MemorySnapshotStore) Set(_ context.Context, kind SnapshotKind, userID string, snapshots []models.PaymentSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := snapshotKey(kind, userID)
	if len(snapshots) == 0 {
		delete(s.data, key)
		return nil
	}
	stored := make([]models.PaymentSnapshot, len(snapshots))
	copy(stored, snapshots)
	s.data[key] = stored
	return nil
}

func (s *MemorySnapshotStore) Clear(_ context.Context, kind SnapshotKind, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, snapshotKey(kind, userID))
	return nil
}

// MemoryPendingStore is an in-process PendingStore.
type MemoryPendingStore struct {
	mu   sync.RWMutex
	data map[string]map[string]*models.PendingSubmission
}

// NewMemoryPendingStore creates an empty in-memory pending store.
func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{data: make(map[string]map[string]*models.PendingSubmission)}
}

func (s *MemoryPendingStore) Create(_ context.Context, sub *models.PendingSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byRef, ok := s.data[sub.UserID]
	if !ok {
		byRef = make(map[string]*models.PendingSubmission)
		s.data[sub.UserID] = byRef
	}
	stored := *sub
	byRef[sub.Ref] = &stored
	return nil
}

// ListByUser returns the user's submissions newest first, decoded back into
// raw records the way the database store returns them.
func (s *MemoryPendingStore) ListByUser(_ context.Context, userID string) ([]reconcile.Raw, error) {
	s.mu.RLock()
	subs := make([]*models.PendingSubmission, 0, len(s.data[userID]))
	for _, sub := range s.data[userID] {
		subs = append(subs, sub)
	}
	s.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.After(subs[j].CreatedAt)
		}
		return subs[i].Ref < subs[j].Ref
	})

	out := make([]reconcile.Raw, 0, len(subs))
	for _, sub := range subs {
		data, err := json.Marshal(sub)
		if err != nil {
			return nil, err
		}
		out = append(out, reconcile.DecodeRaw(data))
	}
	return out, nil
}

func (s *MemoryPendingStore) DeleteByRefs(_ context.Context, userID string, refs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	byRef := s.data[userID]
	for _, ref := range refs {
		if _, ok := byRef[ref]; ok {
			delete(byRef, ref)
			deleted++
		}
	}
	return deleted, nil
}
