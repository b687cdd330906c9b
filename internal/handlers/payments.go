package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/reconcile"
)

// PaymentSuccessRequest is what the checkout sends once a payment succeeds.
// Either amountMinor or amount may carry the total.
type PaymentSuccessRequest struct {
	Reference   string                   `json:"reference"`
	AmountMinor *int64                   `json:"amountMinor"`
	Amount      interface{}              `json:"amount"`
	Treatment   string                   `json:"treatment"`
	Items       []map[string]interface{} `json:"items"`
}

func (r *PaymentSuccessRequest) snapshot() models.PaymentSnapshot {
	snap := models.PaymentSnapshot{
		Reference: r.Reference,
		Treatment: r.Treatment,
		Items:     r.Items,
	}
	if r.AmountMinor != nil {
		snap.AmountMinor = *r.AmountMinor
	} else if r.Amount != nil {
		snap.AmountMinor = reconcile.ToMinor(r.Amount)
	}
	return snap
}

// RecordPaymentSuccess handles POST /api/v2/users/:user_id/payments/success
func (h *Handlers) RecordPaymentSuccess(c *gin.Context) {
	userID := c.Param("user_id")

	var req PaymentSuccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to bind request", logging.Fields{"error": err.Error()})
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.payments.RecordPayment(c.Request.Context(), userID, req.snapshot()); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "recorded"})
}
