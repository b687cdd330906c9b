package handlers

import (
	"context"
	"net/http"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/config"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/reconcile"
)

// OrderReconciler is the order side of the service layer.
type OrderReconciler interface {
	Reconcile(ctx context.Context, userID string) ([]models.Order, error)
	AwaitOrder(ctx context.Context, userID, ref string) (reconcile.PollResult, error)
	SubmitPending(ctx context.Context, userID string, raw reconcile.Raw) (*models.PendingSubmission, error)
}

// PaymentRecorder is the payment side of the service layer.
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, userID string, snap models.PaymentSnapshot) error
}

// ReadinessCheck reports whether one dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Handlers holds all HTTP handlers for the order reconciler.
type Handlers struct {
	orders         OrderReconciler
	payments       PaymentRecorder
	metricsHandler http.Handler
	checks         map[string]ReadinessCheck
	config         *config.Config
	logger         *logging.LoggerV2
}

// NewHandlers creates a new handlers instance.
func NewHandlers(
	orders OrderReconciler,
	payments PaymentRecorder,
	metricsHandler http.Handler,
	cfg *config.Config,
) *Handlers {
	return &Handlers{
		orders:         orders,
		payments:       payments,
		metricsHandler: metricsHandler,
		checks:         make(map[string]ReadinessCheck),
		config:         cfg,
		logger:         logging.NewLoggerV2("handlers"),
	}
}

// AddReadinessCheck registers a dependency probe for GET /ready.
func (h *Handlers) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}
