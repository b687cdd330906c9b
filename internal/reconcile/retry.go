package reconcile

import (
	"context"
	"time"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
)

// RetryPolicy bounds a poll loop: at most MaxAttempts runs, Interval apart,
// stopping early once IsFinal accepts a result.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	IsFinal     func([]models.Order) bool
}

// PollResult is the outcome of a poll loop.
type PollResult struct {
	Orders   []models.Order
	Attempts int
	Final    bool
}

// Poll runs attempt until the result is final or attempts run out. Failed
// attempts keep the previous result. It returns ctx.Err() as soon as the
// context is cancelled, together with the last good result.
func (p RetryPolicy) Poll(ctx context.Context, attempt func(context.Context) ([]models.Order, error)) (PollResult, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var res PollResult
	for i := 1; i <= maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		orders, err := attempt(ctx)
		res.Attempts = i
		if err == nil {
			res.Orders = orders
			if p.IsFinal != nil && p.IsFinal(orders) {
				res.Final = true
				return res, nil
			}
		}
		if i == maxAttempts {
			break
		}

		timer := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return res, ctx.Err()
		case <-timer.C:
		}
	}
	return res, nil
}
