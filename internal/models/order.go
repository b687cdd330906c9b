package models

import (
	"math"
	"strings"
	"time"
)

// PaymentStatus is the user-facing payment state of an order.
type PaymentStatus string

const (
	PaymentStatusPaid       PaymentStatus = "Paid"
	PaymentStatusDispatched PaymentStatus = "Dispatched"
	PaymentStatusDelivered  PaymentStatus = "Delivered"
	PaymentStatusCancelled  PaymentStatus = "Cancelled"
	PaymentStatusPending    PaymentStatus = "Pending"
)

// BookingStatus is the clinical approval state of an order. The zero value means absent.
type BookingStatus string

const (
	BookingStatusNone     BookingStatus = ""
	BookingStatusPending  BookingStatus = "pending"
	BookingStatusApproved BookingStatus = "approved"
	BookingStatusRejected BookingStatus = "rejected"
)

// Origin records where an order came from. It only drives merge precedence.
type Origin string

const (
	OriginRemote  Origin = "remote"
	OriginPending Origin = "pending"
	OriginLocal   Origin = "local"
)

// Rank orders origins by precedence; higher wins.
func (o Origin) Rank() int {
	switch o {
	case OriginRemote:
		return 3
	case OriginPending:
		return 2
	case OriginLocal:
		return 1
	default:
		return 0
	}
}

// TempIDPrefix marks a locally cached order whose reference is not known yet.
const TempIDPrefix = "temp-"

// SyntheticSKU is the sku of the stand-in line built from an order total.
const SyntheticSKU = "order"

// VariationSeparator joins name and variation at render time only.
const VariationSeparator = " - "

// LineItem is one purchased unit-type within an order.
type LineItem struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Variation  string `json:"variation,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitMinor  int64  `json:"unitMinor"`
	TotalMinor int64  `json:"totalMinor"`
}

// DisplayName renders name and variation with VariationSeparator.
func (li LineItem) DisplayName() string {
	if li.Variation == "" {
		return li.Name
	}
	return li.Name + VariationSeparator + li.Variation
}

// Synthetic reports whether the line was substituted for missing item data.
func (li LineItem) Synthetic() bool {
	return li.SKU == SyntheticSKU
}

// Order is a purchase record surfaced to the user.
type Order struct {
	ID            string        `json:"id"`
	CreatedAt     time.Time     `json:"createdAt"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	BookingStatus BookingStatus `json:"bookingStatus,omitempty"`
	DisplayStatus string        `json:"displayStatus,omitempty"`
	TotalMinor    int64         `json:"totalMinor"`
	Items         []LineItem    `json:"items"`
	Origin        Origin        `json:"-"`
}

// IsPlaceholder reports whether the order still carries a temporary id.
func (o *Order) IsPlaceholder() bool {
	return strings.HasPrefix(o.ID, TempIDPrefix)
}

// HasRealItems reports whether the order has at least one non-synthetic line.
func (o *Order) HasRealItems() bool {
	for _, item := range o.Items {
		if !item.Synthetic() {
			return true
		}
	}
	return false
}

// ItemsTotal sums line totals, saturating at MaxInt64.
func (o *Order) ItemsTotal() int64 {
	var sum int64
	for _, item := range o.Items {
		if item.TotalMinor > math.MaxInt64-sum {
			return math.MaxInt64
		}
		sum += item.TotalMinor
	}
	return sum
}

// Clone returns a deep copy of the order.
func (o Order) Clone() Order {
	items := make([]LineItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}
