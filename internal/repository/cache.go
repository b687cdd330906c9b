package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/config"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
)

const (
	snapshotKeyPrefix  = "order_snapshots:"
	defaultSnapshotTTL = 24 * time.Hour
)

// NewRedisClient builds a go-redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// RedisSnapshotStore implements SnapshotStore using Redis. Each collection is
// one JSON array under its own key.
type RedisSnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.LoggerV2
}

// NewRedisSnapshotStore creates a Redis-backed snapshot store.
func NewRedisSnapshotStore(client *redis.Client, ttl time.Duration) *RedisSnapshotStore {
	if ttl == 0 {
		ttl = defaultSnapshotTTL
	}

	return &RedisSnapshotStore{
		client: client,
		ttl:    ttl,
		logger: logging.NewLoggerV2("snapshot-cache"),
	}
}

func snapshotKey(kind SnapshotKind, userID string) string {
	return snapshotKeyPrefix + string(kind) + ":" + userID
}

// Get returns the snapshots of one collection. Corrupt entries read as empty.
func (c *RedisSnapshotStore) Get(ctx context.Context, kind SnapshotKind, userID string) ([]models.PaymentSnapshot, error) {
	key := snapshotKey(kind, userID)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.logger.Debug("Snapshot cache miss", logging.Fields{"kind": kind, "user_id": userID})
		return nil, nil
	}
	if err != nil {
		c.logger.Error("Snapshot cache get error", logging.Fields{
			"kind":    kind,
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil, err
	}

	var snapshots []models.PaymentSnapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		c.logger.Warn("Discarding corrupt snapshot entry", logging.Fields{
			"kind":    kind,
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil, nil
	}

	return snapshots, nil
}

// Set replaces a collection. An empty slice clears it.
func (c *RedisSnapshotStore) Set(ctx context.Context, kind SnapshotKind, userID string, snapshots []models.PaymentSnapshot) error {
	if len(snapshots) == 0 {
		return c.Clear(ctx, kind, userID)
	}

	data, err := json.Marshal(snapshots)
	if err != nil {
		return err
	}

	key := snapshotKey(kind, userID)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Error("Snapshot cache set error", logging.Fields{
			"kind":    kind,
			"user_id": userID,
			"error":   err.Error(),
		})
		return err
	}

	c.logger.Debug("Snapshots cached", logging.Fields{
		"kind":    kind,
		"user_id": userID,
		"count":   len(snapshots),
		"ttl":     c.ttl.String(),
	})
	return nil
}

// Clear removes a collection.
func (c *RedisSnapshotStore) Clear(ctx context.Context, kind SnapshotKind, userID string) error {
	return c.client.Del(ctx, snapshotKey(kind, userID)).Err()
}
