package config

import (
	"strconv"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig   `envPrefix:"SERVER_"`
	Database     DatabaseConfig `envPrefix:"DB_"`
	Redis        RedisConfig    `envPrefix:"REDIS_"`
	Kafka        KafkaConfig    `envPrefix:"KAFKA_"`
	RemoteOrders ServiceConfig  `envPrefix:"REMOTE_ORDERS_"`
	Poll         PollConfig     `envPrefix:"POLL_"`
	Log          LogConfig      `envPrefix:"LOG_"`
	Features     FeatureFlags   `envPrefix:"FEATURE_"`
}

type ServerConfig struct {
	Port         int           `env:"PORT" envDefault:"8082"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
}

type DatabaseConfig struct {
	Host         string        `env:"HOST" envDefault:"localhost"`
	Port         int           `env:"PORT" envDefault:"5432"`
	User         string        `env:"USER" envDefault:"acme"`
	Password     string        `env:"PASSWORD" envDefault:"acme"`
	Name         string        `env:"NAME" envDefault:"acme_orders"`
	SSLMode      string        `env:"SSLMODE" envDefault:"disable"`
	MaxOpenConns int           `env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	MaxLifetime  time.Duration `env:"MAX_LIFETIME" envDefault:"5m"`
}

func (d DatabaseConfig) ConnectionString() string {
	return "host=" + d.Host +
		" port=" + strconv.Itoa(d.Port) +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string        `env:"HOST" envDefault:"localhost"`
	Port     int           `env:"PORT" envDefault:"6379"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	TTL      time.Duration `env:"TTL" envDefault:"24h"`
}

type KafkaConfig struct {
	Brokers       []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	OrdersTopic   string   `env:"ORDERS_TOPIC" envDefault:"orders"`
	PaymentsTopic string   `env:"PAYMENTS_TOPIC" envDefault:"payments"`
	ConsumerGroup string   `env:"CONSUMER_GROUP" envDefault:"order-reconciler"`
}

// ServiceConfig describes an upstream HTTP dependency.
type ServiceConfig struct {
	BaseURL string        `env:"URL" envDefault:"http://localhost:8081"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	APIKey  string        `env:"API_KEY"`
	// Consecutive failures before the breaker opens, and how long it stays open.
	BreakerFailures uint32        `env:"BREAKER_FAILURES" envDefault:"5"`
	BreakerTimeout  time.Duration `env:"BREAKER_TIMEOUT" envDefault:"30s"`
}

// PollConfig bounds the post-payment refresh loop.
type PollConfig struct {
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"6"`
	Interval    time.Duration `env:"INTERVAL" envDefault:"2s"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

type FeatureFlags struct {
	EnableOrderEvents   bool `env:"ORDER_EVENTS" envDefault:"true"`
	EnablePendingStore  bool `env:"PENDING_STORE" envDefault:"true"`
	EnablePaymentEvents bool `env:"PAYMENT_EVENTS" envDefault:"true"`
	// TODO(TEAM-CLINICAL): confirm every paid order awaits manual approval before relying on this default.
	AssumePaidAwaitsApproval bool `env:"ASSUME_PAID_AWAITS_APPROVAL" envDefault:"true"`
}

// Load reads configuration from the environment, after an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
