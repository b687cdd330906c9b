package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
)

func setupTestRedis(t *testing.T) (*RedisSnapshotStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisSnapshotStore(client, time.Hour), mr
}

func testSnapshot(ref string) models.PaymentSnapshot {
	return models.PaymentSnapshot{
		Reference:   ref,
		AmountMinor: 16999,
		Treatment:   "Mounjaro",
		Items:       []map[string]interface{}{{"name": "Mounjaro 2.5mg", "price": "169.99"}},
		CreatedAt:   time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestRedisSnapshotStore_SetAndGet(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	err := store.Set(ctx, SnapshotLocal, "user-1", []models.PaymentSnapshot{testSnapshot("REF1"), testSnapshot("REF2")})
	require.NoError(t, err)

	got, err := store.Get(ctx, SnapshotLocal, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "REF1", got[0].Reference)
	assert.Equal(t, int64(16999), got[0].AmountMinor)
	assert.Equal(t, "Mounjaro 2.5mg", got[0].Items[0]["name"])
	assert.True(t, got[0].CreatedAt.Equal(testSnapshot("").CreatedAt))

	assert.True(t, mr.Exists("order_snapshots:local:user-1"))
	assert.Equal(t, time.Hour, mr.TTL("order_snapshots:local:user-1"))
}

func TestRedisSnapshotStore_KindsAndUsersAreIsolated(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, SnapshotLastPayment, "user-1", []models.PaymentSnapshot{testSnapshot("REF1")}))

	got, err := store.Get(ctx, SnapshotLocal, "user-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = store.Get(ctx, SnapshotLastPayment, "user-2")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisSnapshotStore_MissReturnsEmpty(t *testing.T) {
	store, _ := setupTestRedis(t)

	got, err := store.Get(context.Background(), SnapshotLocal, "nobody")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSnapshotStore_CorruptEntryReadsAsEmpty(t *testing.T) {
	store, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("order_snapshots:local:user-1", "{not json"))

	got, err := store.Get(context.Background(), SnapshotLocal, "user-1")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSnapshotStore_ClearAndEmptySet(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, SnapshotLocal, "user-1", []models.PaymentSnapshot{testSnapshot("REF1")}))
	require.NoError(t, store.Set(ctx, SnapshotLocal, "user-1", nil))
	assert.False(t, mr.Exists("order_snapshots:local:user-1"))

	require.NoError(t, store.Set(ctx, SnapshotLastPayment, "user-1", []models.PaymentSnapshot{testSnapshot("REF1")}))
	require.NoError(t, store.Clear(ctx, SnapshotLastPayment, "user-1"))
	assert.False(t, mr.Exists("order_snapshots:last_payment:user-1"))
}

func TestRedisSnapshotStore_ConnectionError(t *testing.T) {
	store, mr := setupTestRedis(t)
	mr.Close()

	_, err := store.Get(context.Background(), SnapshotLocal, "user-1")

	assert.Error(t, err)
}
