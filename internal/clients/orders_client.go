package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker/v2"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/config"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/middleware"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/reconcile"
)

const maxResponseBytes = 4 << 20

// RemoteOrderClient fetches a user's orders from the authoritative order system.
type RemoteOrderClient interface {
	ListOrders(ctx context.Context, userID string) ([]reconcile.Raw, error)
}

var _ RemoteOrderClient = (*HTTPRemoteOrderClient)(nil)

// HTTPRemoteOrderClient implements RemoteOrderClient over HTTP behind a
// circuit breaker.
type HTTPRemoteOrderClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *logging.LoggerV2
}

// NewHTTPRemoteOrderClient creates a client for the remote orders API.
func NewHTTPRemoteOrderClient(cfg config.ServiceConfig, logger *logging.LoggerV2) *HTTPRemoteOrderClient {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "remote-orders",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", logging.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})

	return &HTTPRemoteOrderClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		apiKey:  cfg.APIKey,
		breaker: breaker,
		logger:  logger,
	}
}

// ListOrders returns the user's remote orders as raw records. A 404 or a body
// that is not a list of records yields an empty result.
func (c *HTTPRemoteOrderClient) ListOrders(ctx context.Context, userID string) ([]reconcile.Raw, error) {
	c.logger.Debug("Fetching remote orders", logging.Fields{"user_id": userID})

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.get(ctx, fmt.Sprintf("%s/api/v2/users/%s/orders", c.baseURL, url.PathEscape(userID)))
	})
	if err != nil {
		c.logger.Error("Remote orders request failed", logging.Fields{
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	orders := reconcile.DecodeRawList(body)
	if orders == nil {
		c.logger.Warn("Remote orders response was not a list", logging.Fields{
			"user_id": userID,
			"bytes":   len(body),
		})
	}

	c.logger.Info("Remote orders fetched", logging.Fields{
		"user_id": userID,
		"count":   len(orders),
	})
	return orders, nil
}

func (c *HTTPRemoteOrderClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote orders returned status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}

func (c *HTTPRemoteOrderClient) setHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("Accept", "application/json")

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if requestID := middleware.RequestIDFrom(ctx); requestID != "" {
		req.Header.Set(middleware.HeaderRequestID, requestID)
	}
}
