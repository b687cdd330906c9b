package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8082, cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 6, cfg.Poll.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	assert.True(t, cfg.Features.AssumePaidAwaitsApproval)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("POLL_INTERVAL", "500ms")
	t.Setenv("REMOTE_ORDERS_URL", "http://orders.internal")
	t.Setenv("FEATURE_ASSUME_PAID_AWAITS_APPROVAL", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 500*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, "http://orders.internal", cfg.RemoteOrders.BaseURL)
	assert.False(t, cfg.Features.AssumePaidAwaitsApproval)
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "orders", SSLMode: "require"}

	assert.Equal(t, "host=db port=5433 user=u password=p dbname=orders sslmode=require", d.ConnectionString())
}
