package reconcile

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
)

var (
	idKeys          = []string{"reference", "ref", "reference_code", "referenceCode", "order_ref", "orderRef", "order_reference", "id", "order_id", "orderId"}
	createdAtKeys   = []string{"created_at", "createdAt", "created", "date", "timestamp", "paid_at", "paidAt", "submitted_at"}
	paymentKeys     = []string{"payment_status", "paymentStatus", "payment_state", "paymentState", "payment.status"}
	fulfilmentKeys  = []string{"fulfillment_status", "fulfilment_status", "fulfillmentStatus", "shipping_status", "delivery_status"}
	bookingKeys     = []string{"booking_status", "bookingStatus", "approval_status", "approvalStatus", "booking.status"}
	statusKeys      = []string{"status", "state", "order_status"}
	minorTotalKeys  = []string{"amountMinor", "amount_minor", "totalMinor", "total_minor", "total_pence", "amount_pence"}
	majorTotalKeys  = []string{"amount", "total", "total_amount", "totalAmount", "grand_total", "amount_total", "price"}
	displayNameKeys = []string{"treatment", "treatment_name", "product_name", "productName", "product", "title", "service"}
)

// syntheticItemName names the stand-in line when nothing better is known.
const syntheticItemName = "Order"

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
}

// Normalizer turns one raw order payload into a canonical models.Order.
type Normalizer struct {
	now                      func() time.Time
	newID                    func() string
	assumePaidAwaitsApproval bool
	logger                   *logging.LoggerV2
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the time source used for missing timestamps.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithIDGenerator overrides how missing references are generated.
func WithIDGenerator(newID func() string) Option {
	return func(n *Normalizer) { n.newID = newID }
}

// WithPaidAwaitsApproval controls whether a paid order with no booking
// decision is reported as awaiting approval.
func WithPaidAwaitsApproval(enabled bool) Option {
	return func(n *Normalizer) { n.assumePaidAwaitsApproval = enabled }
}

// NewNormalizer creates a Normalizer with the default clock and uuid ids.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		now:                      time.Now,
		newID:                    func() string { return uuid.NewString() },
		assumePaidAwaitsApproval: true,
		logger:                   logging.NewLoggerV2("order-normalizer"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts raw into an Order tagged with origin. It never fails.
func (n *Normalizer) Normalize(raw Raw, origin models.Origin) models.Order {
	if raw == nil {
		raw = Raw{}
	}
	meta := MetaOf(raw)

	order := models.Order{
		ID:        n.resolveID(raw, origin),
		CreatedAt: n.resolveCreatedAt(raw),
		Origin:    origin,
	}
	order.PaymentStatus = resolvePaymentStatus(raw)
	order.BookingStatus = n.resolveBookingStatus(raw, meta, order.PaymentStatus)

	explicitTotal := resolveOrderTotal(raw)
	if explicitTotal == 0 && meta != nil {
		explicitTotal = resolveOrderTotal(meta)
	}

	order.Items = n.Items(FindItemRecords(raw), explicitTotal)

	order.TotalMinor = explicitTotal
	if order.TotalMinor == 0 {
		order.TotalMinor = order.ItemsTotal()
	}

	if len(order.Items) == 0 {
		order.Items = []models.LineItem{SyntheticItem(resolveDisplayName(raw, meta), order.TotalMinor)}
	}
	return order
}

// Items builds canonical line items from raw item records. orderTotal is the
// explicit order-level amount, or 0 when unknown.
func (n *Normalizer) Items(records []Raw, orderTotal int64) []models.LineItem {
	lc := LineContext{OrderTotalMinor: orderTotal, ItemCount: len(records)}

	items := make([]models.LineItem, 0, len(records))
	for _, rec := range records {
		p := Extract(rec, lc)
		if p.Name == "" && p.Variation == "" && p.UnitMinor == 0 && p.TotalMinor == 0 {
			continue
		}
		name, variation := SplitNameVariation(p.Name, p.Variation)
		if name == "" {
			name = defaultItemName
		}
		sku := p.SKU
		if sku == "" {
			sku = SynthesizeSKU(name, variation)
		}
		items = append(items, models.LineItem{
			SKU:        sku,
			Name:       name,
			Variation:  variation,
			Quantity:   p.Quantity,
			UnitMinor:  p.UnitMinor,
			TotalMinor: p.TotalMinor,
		})
	}

	// A lone unpriced line carries the whole order amount.
	if len(items) == 1 && items[0].TotalMinor == 0 && orderTotal > 0 {
		items[0].TotalMinor = orderTotal
		items[0].UnitMinor = roundDiv(orderTotal, int64(items[0].Quantity))
	}
	return items
}

// SyntheticItem is the single line substituted when no items can be derived.
func SyntheticItem(name string, totalMinor int64) models.LineItem {
	if name == "" {
		name = syntheticItemName
	}
	return models.LineItem{
		SKU:        models.SyntheticSKU,
		Name:       name,
		Quantity:   1,
		UnitMinor:  totalMinor,
		TotalMinor: totalMinor,
	}
}

var skuUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// SynthesizeSKU derives a stable sku from name and variation.
func SynthesizeSKU(name, variation string) string {
	s := strings.ToLower(strings.TrimSpace(name + " " + variation))
	return strings.Trim(skuUnsafe.ReplaceAllString(s, "-"), "-")
}

func (n *Normalizer) resolveID(raw Raw, origin models.Origin) string {
	if id := firstString(raw, idKeys); id != "" {
		return id
	}
	if origin == models.OriginLocal {
		return models.TempIDPrefix + n.newID()
	}
	return n.newID()
}

func (n *Normalizer) resolveCreatedAt(raw Raw) time.Time {
	for _, key := range createdAtKeys {
		v, ok := lookup(raw, key)
		if !ok || v == nil {
			continue
		}
		if t, ok := parseTime(v); ok {
			return t
		}
		n.logger.Debug("Unparseable order timestamp", logging.Fields{"key": key, "value": v})
	}
	return n.now()
}

func parseTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f)
		}
	case float64:
		return fromEpoch(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return fromEpoch(f)
		}
	case int64:
		return fromEpoch(float64(t))
	case int:
		return fromEpoch(float64(t))
	case time.Time:
		return t, !t.IsZero()
	}
	return time.Time{}, false
}

// fromEpoch accepts seconds or milliseconds since the epoch.
func fromEpoch(f float64) (time.Time, bool) {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	return time.Unix(int64(f), 0).UTC(), true
}

var paymentStatusMap = map[string]models.PaymentStatus{
	"paid":       models.PaymentStatusPaid,
	"succeeded":  models.PaymentStatusPaid,
	"captured":   models.PaymentStatusPaid,
	"completed":  models.PaymentStatusPaid,
	"complete":   models.PaymentStatusPaid,
	"refunded":   models.PaymentStatusCancelled,
	"cancelled":  models.PaymentStatusCancelled,
	"canceled":   models.PaymentStatusCancelled,
	"voided":     models.PaymentStatusCancelled,
	"failed":     models.PaymentStatusCancelled,
	"dispatched": models.PaymentStatusDispatched,
	"shipped":    models.PaymentStatusDispatched,
	"delivered":  models.PaymentStatusDelivered,
}

func resolvePaymentStatus(raw Raw) models.PaymentStatus {
	status := models.PaymentStatusPending
	if mapped, ok := paymentStatusMap[strings.ToLower(firstString(raw, paymentKeys))]; ok {
		status = mapped
	}
	if status != models.PaymentStatusPaid {
		return status
	}
	switch fulfilment := paymentStatusMap[strings.ToLower(firstString(raw, fulfilmentKeys))]; fulfilment {
	case models.PaymentStatusDispatched, models.PaymentStatusDelivered:
		return fulfilment
	}
	return status
}

var bookingStatusMap = map[string]models.BookingStatus{
	"pending":   models.BookingStatusPending,
	"awaiting":  models.BookingStatusPending,
	"review":    models.BookingStatusPending,
	"in_review": models.BookingStatusPending,
	"approved":  models.BookingStatusApproved,
	"accepted":  models.BookingStatusApproved,
	"confirmed": models.BookingStatusApproved,
	"rejected":  models.BookingStatusRejected,
	"declined":  models.BookingStatusRejected,
	"denied":    models.BookingStatusRejected,
}

func parseBookingStatus(s string) models.BookingStatus {
	return bookingStatusMap[strings.ToLower(strings.TrimSpace(s))]
}

func (n *Normalizer) resolveBookingStatus(raw, meta Raw, payment models.PaymentStatus) models.BookingStatus {
	if b := parseBookingStatus(firstString(raw, bookingKeys)); b != models.BookingStatusNone {
		return b
	}
	if meta != nil {
		if b := parseBookingStatus(firstString(meta, bookingKeys)); b != models.BookingStatusNone {
			return b
		}
	}
	if payment == models.PaymentStatusPaid && n.assumePaidAwaitsApproval {
		return models.BookingStatusPending
	}
	if containsFold(firstString(raw, statusKeys), "pending") {
		return models.BookingStatusPending
	}
	return models.BookingStatusNone
}

func resolveOrderTotal(raw Raw) int64 {
	for _, key := range minorTotalKeys {
		if v, ok := priceAt(raw, key); ok {
			return v
		}
	}
	for _, key := range majorTotalKeys {
		if v, ok := priceAt(raw, key); ok {
			return v
		}
	}
	return 0
}

func resolveDisplayName(raw, meta Raw) string {
	if name := firstString(raw, displayNameKeys); name != "" {
		return name
	}
	if meta != nil {
		return firstString(meta, displayNameKeys)
	}
	return ""
}

// SnapshotOrder normalizes a payment snapshot. Snapshots are taken at payment
// success, so they are always Paid.
func (n *Normalizer) SnapshotOrder(snap models.PaymentSnapshot, origin models.Origin) models.Order {
	id := snap.Reference
	if id == "" {
		id = models.TempIDPrefix + strconv.FormatInt(snap.CreatedAt.UnixNano(), 10)
	}
	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = n.now()
	}

	records := make([]Raw, 0, len(snap.Items))
	for _, item := range snap.Items {
		records = append(records, item)
	}

	order := models.Order{
		ID:            id,
		CreatedAt:     createdAt,
		PaymentStatus: models.PaymentStatusPaid,
		TotalMinor:    snap.AmountMinor,
		Origin:        origin,
		Items:         n.Items(records, snap.AmountMinor),
	}
	if n.assumePaidAwaitsApproval {
		order.BookingStatus = models.BookingStatusPending
	}
	if order.TotalMinor == 0 {
		order.TotalMinor = order.ItemsTotal()
	}
	if len(order.Items) == 0 {
		order.Items = []models.LineItem{SyntheticItem(snap.Treatment, order.TotalMinor)}
	}
	return order
}
