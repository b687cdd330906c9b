package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/errors"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/middleware"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/reconcile"
)

const maxBodyBytes = 1 << 20

// SubmitPending handles POST /api/v2/pending-orders
func (h *Handlers) SubmitPending(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil || !json.Valid(body) {
		h.logger.Warn("Rejected pending submission body", logging.Fields{"bytes": len(body)})
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	raw := reconcile.DecodeRaw(body)

	userID := c.Query("user_id")
	if userID == "" {
		userID = c.GetHeader(middleware.HeaderUserID)
	}
	if userID == "" {
		for _, key := range []string{"user_id", "userId"} {
			if s, ok := raw[key].(string); ok && s != "" {
				userID = s
				break
			}
		}
	}

	sub, err := h.orders.SubmitPending(c.Request.Context(), userID, raw)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sub)
}

// GetUserOrders handles GET /api/v2/users/:user_id/orders
func (h *Handlers) GetUserOrders(c *gin.Context) {
	userID := c.Param("user_id")

	orders, err := h.orders.Reconcile(c.Request.Context(), userID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"total":  len(orders),
	})
}

// CheckoutSuccess handles GET /api/v2/users/:user_id/checkout/success/:ref
//
// It polls until the remote system reports the order with its items. 200 means
// the order is final; 202 means polling gave up and the list is best effort.
func (h *Handlers) CheckoutSuccess(c *gin.Context) {
	userID := c.Param("user_id")
	ref := c.Param("ref")

	res, err := h.orders.AwaitOrder(c.Request.Context(), userID, ref)
	if err != nil {
		if c.Request.Context().Err() != nil {
			h.logger.Debug("Client went away during checkout poll", logging.Fields{"user_id": userID, "ref": ref})
			return
		}
		h.handleError(c, err)
		return
	}

	var order *models.Order
	for i := range res.Orders {
		if res.Orders[i].ID == ref {
			order = &res.Orders[i]
			break
		}
	}

	status := http.StatusOK
	if !res.Final {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{
		"order":    order,
		"orders":   res.Orders,
		"final":    res.Final,
		"attempts": res.Attempts,
	})
}

func (h *Handlers) handleError(c *gin.Context, err error) {
	if errors.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	if validationErr, ok := errors.AsValidation(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   validationErr.Message,
			"details": validationErr.Details,
		})
		return
	}

	h.logger.Error("Request failed", logging.Fields{"error": err.Error(), "path": c.FullPath()})
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
