package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/clients"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/config"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/events"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/handlers"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/repository"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/server"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewLoggerV2("order-reconciler").Fatal("Failed to load config", logging.Fields{"error": err.Error()})
	}

	logging.Configure(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	logger := logging.NewLoggerV2("order-reconciler")

	logging.Infof("Starting order-reconciler on port %d", cfg.Server.Port)

	var (
		db      *sql.DB
		pending repository.PendingStore
	)
	if cfg.Features.EnablePendingStore {
		db, err = initDatabase(cfg)
		if err != nil {
			logger.Fatal("Failed to connect to database", logging.Fields{"error": err.Error()})
		}
		defer db.Close()
		pending = repository.NewPostgresPendingStore(db, logger)
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	defer redisClient.Close()
	snapshots := repository.NewRedisSnapshotStore(redisClient, cfg.Redis.TTL)

	remote := clients.NewHTTPRemoteOrderClient(cfg.RemoteOrders, logger)
	m := metrics.New()

	var publisher service.EventPublisher
	if cfg.Features.EnableOrderEvents {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka, logger)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	reconcileService := service.NewReconcileService(remote, pending, snapshots, publisher, m, cfg)
	paymentService := service.NewPaymentService(snapshots)

	h := handlers.NewHandlers(reconcileService, paymentService, m.Handler(), cfg)
	h.AddReadinessCheck("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	if db != nil {
		h.AddReadinessCheck("postgres", db.PingContext)
	}

	srv := server.New(h, cfg)

	go func() {
		logger.Info("Server starting", logging.Fields{
			"port":           cfg.Server.Port,
			"pending_store":  cfg.Features.EnablePendingStore,
			"order_events":   cfg.Features.EnableOrderEvents,
			"payment_events": cfg.Features.EnablePaymentEvents,
		})
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", logging.Fields{"error": err.Error()})
		}
	}()

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()

	var eventConsumer *events.KafkaConsumer
	if cfg.Features.EnablePaymentEvents {
		eventConsumer = events.NewKafkaConsumer(cfg.Kafka, paymentService, logger)
		go func() {
			if err := eventConsumer.Start(consumerCtx); err != nil && consumerCtx.Err() == nil {
				logger.Error("Event consumer failed", logging.Fields{"error": err.Error()})
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if eventConsumer != nil {
		stopConsumer()
		eventConsumer.Stop()
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", logging.Fields{"error": err.Error()})
	}

	logger.Info("Server exited")
}

func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := repository.OpenPostgres(cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := repository.RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	logging.Info("Migrations applied", logging.Fields{"name": cfg.Database.Name})

	return db, nil
}
