package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/config"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/reconcile"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTable = "order_reconciler_schema_migrations"

// OpenPostgres opens and pings a connection pool.
func OpenPostgres(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logging.Info("Database connected", logging.Fields{
		"host": cfg.Host,
		"name": cfg.Name,
	})
	return db, nil
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: migrationsTable,
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

// PostgresPendingStore implements PendingStore using PostgreSQL. Submissions
// are kept as JSONB so the reader sees exactly what was written.
type PostgresPendingStore struct {
	db     *sql.DB
	logger *logging.LoggerV2
}

// NewPostgresPendingStore creates a PostgreSQL pending submission store.
func NewPostgresPendingStore(db *sql.DB, logger *logging.LoggerV2) *PostgresPendingStore {
	return &PostgresPendingStore{
		db:     db,
		logger: logger,
	}
}

// Create upserts a submission by (user_id, ref).
func (r *PostgresPendingStore) Create(ctx context.Context, sub *models.PendingSubmission) error {
	r.logger.Debug("Storing pending submission", logging.Fields{
		"ref":     sub.Ref,
		"user_id": sub.UserID,
	})

	payload, err := json.Marshal(sub)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pending_orders (ref, user_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, ref)
		DO UPDATE SET payload = EXCLUDED.payload, created_at = EXCLUDED.created_at
	`

	if _, err := r.db.ExecContext(ctx, query, sub.Ref, sub.UserID, payload, sub.CreatedAt); err != nil {
		r.logger.Error("Failed to store pending submission", logging.Fields{
			"ref":     sub.Ref,
			"user_id": sub.UserID,
			"error":   err.Error(),
		})
		return err
	}

	r.logger.Info("Pending submission stored", logging.Fields{
		"ref":          sub.Ref,
		"user_id":      sub.UserID,
		"amount_minor": sub.AmountMinor,
	})
	return nil
}

// ListByUser returns a user's raw submissions, newest first.
func (r *PostgresPendingStore) ListByUser(ctx context.Context, userID string) ([]reconcile.Raw, error) {
	query := `
		SELECT payload
		FROM pending_orders
		WHERE user_id = $1
		ORDER BY created_at DESC, ref ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to list pending submissions", logging.Fields{
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil, err
	}
	defer rows.Close()

	out := make([]reconcile.Raw, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		out = append(out, reconcile.DecodeRaw(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.logger.Debug("Pending submissions listed", logging.Fields{
		"user_id": userID,
		"count":   len(out),
	})
	return out, nil
}

// DeleteByRefs removes the user's submissions with the given refs.
func (r *PostgresPendingStore) DeleteByRefs(ctx context.Context, userID string, refs []string) (int64, error) {
	if len(refs) == 0 {
		return 0, nil
	}

	query := `DELETE FROM pending_orders WHERE user_id = $1 AND ref = ANY($2)`

	result, err := r.db.ExecContext(ctx, query, userID, pq.Array(refs))
	if err != nil {
		r.logger.Error("Failed to prune pending submissions", logging.Fields{
			"user_id": userID,
			"error":   err.Error(),
		})
		return 0, err
	}

	deleted, _ := result.RowsAffected()
	r.logger.Info("Pending submissions pruned", logging.Fields{
		"user_id": userID,
		"deleted": deleted,
	})
	return deleted, nil
}
