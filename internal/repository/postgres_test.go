package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("Integration test - set INTEGRATION_TESTS=1 to run against a postgres container")
	}
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(db))
	return db
}

func TestPostgresPendingStore_CreateListDelete(t *testing.T) {
	db := setupTestDB(t)
	store := NewPostgresPendingStore(db, logging.NewLoggerV2("pending-store-test"))
	ctx := context.Background()
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	sub := &models.PendingSubmission{
		Ref:         "P1",
		UserID:      "user-1",
		AmountMinor: 16999,
		Type:        "treatment",
		Items: []models.SubmissionLine{
			{SKU: "mj", Name: "Mounjaro", Variations: "2.5mg", Qty: 1, UnitMinor: 16999, TotalMinor: 16999},
		},
		CreatedAt: t0,
	}
	require.NoError(t, store.Create(ctx, sub))
	require.NoError(t, store.Create(ctx, &models.PendingSubmission{Ref: "P2", UserID: "user-1", CreatedAt: t0.Add(time.Hour)}))

	// Upsert on the same ref.
	sub.AmountMinor = 17499
	require.NoError(t, store.Create(ctx, sub))

	raws, err := store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, "P2", raws[0]["ref"])
	assert.Equal(t, float64(17499), raws[1]["amountMinor"])

	deleted, err := store.DeleteByRefs(ctx, "user-1", []string{"P1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	raws, err = store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, raws, 1)
}

func TestPostgresPendingStore_DeleteNothing(t *testing.T) {
	store := NewPostgresPendingStore(nil, logging.NewLoggerV2("pending-store-test"))

	deleted, err := store.DeleteByRefs(context.Background(), "user-1", nil)

	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	assert.NoError(t, RunMigrations(db))
}
