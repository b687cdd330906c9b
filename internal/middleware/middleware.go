// Package middleware holds the gin middleware and request-scoped header
// conventions shared by handlers and outbound clients.
package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderUserID    = "X-User-ID"
)

type contextKey string

// RequestIDKey is the context key carrying the inbound request id.
const RequestIDKey contextKey = "request_id"

// RequestID reuses the caller's X-Request-ID or mints one, echoes it on the
// response and stores it on the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Set(string(RequestIDKey), id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), RequestIDKey, id))
		c.Next()
	}
}

// RequestIDFrom returns the request id stored on ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// Logger writes one structured line per request.
func Logger() gin.HandlerFunc {
	logger := logging.NewLoggerV2("http")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logging.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  RequestIDFrom(c.Request.Context()),
		}
		if c.Writer.Status() >= 500 {
			logger.Error("Request failed", fields)
			return
		}
		logger.Debug("Request served", fields)
	}
}
