package reconcile

import "github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"

// Display labels, most decisive first.
const (
	DisplayCancelled        = "Cancelled"
	DisplayRejected         = "Rejected"
	DisplayDelivered        = "Delivered"
	DisplayDispatched       = "Dispatched"
	DisplayAwaitingPayment  = "Awaiting payment"
	DisplayApproved         = "Approved"
	DisplayAwaitingApproval = "Awaiting approval"
	DisplayPaid             = "Paid"
)

// DisplayStatus folds payment and booking status into one user-facing label.
func DisplayStatus(o *models.Order) string {
	switch {
	case o.PaymentStatus == models.PaymentStatusCancelled:
		return DisplayCancelled
	case o.BookingStatus == models.BookingStatusRejected:
		return DisplayRejected
	case o.PaymentStatus == models.PaymentStatusDelivered:
		return DisplayDelivered
	case o.PaymentStatus == models.PaymentStatusDispatched:
		return DisplayDispatched
	case o.PaymentStatus == models.PaymentStatusPending:
		return DisplayAwaitingPayment
	case o.BookingStatus == models.BookingStatusApproved:
		return DisplayApproved
	case o.BookingStatus == models.BookingStatusPending:
		return DisplayAwaitingApproval
	default:
		return DisplayPaid
	}
}
