package models

import "time"

// SubmissionLine is the wire shape of a line inside a pending submission.
// "variations" (plural) is the canonical key for the variation label.
type SubmissionLine struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Variations string `json:"variations,omitempty"`
	Qty        int    `json:"qty"`
	UnitMinor  int64  `json:"unitMinor"`
	TotalMinor int64  `json:"totalMinor"`
}

// SubmissionMeta mirrors the item lines for stores that only keep metadata.
type SubmissionMeta struct {
	Lines []SubmissionLine `json:"lines"`
}

// PendingSubmission is the record forwarded to the backing store right after payment.
type PendingSubmission struct {
	Ref         string `json:"ref"`
	UserID      string `json:"user_id,omitempty"`
	AmountMinor int64  `json:"amountMinor"`
	Type        string `json:"type"`
	// Statuses travel with the record so a just-paid order reads back as paid.
	PaymentStatus PaymentStatus    `json:"payment_status,omitempty"`
	BookingStatus BookingStatus    `json:"booking_status,omitempty"`
	Items         []SubmissionLine `json:"items"`
	Meta          SubmissionMeta   `json:"meta"`
	CreatedAt     time.Time        `json:"created_at"`
}

// NewPendingSubmission converts a normalized order into the submission wire shape.
func NewPendingSubmission(userID, submissionType string, order *Order) *PendingSubmission {
	lines := make([]SubmissionLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, SubmissionLine{
			SKU:        item.SKU,
			Name:       item.Name,
			Variations: item.Variation,
			Qty:        item.Quantity,
			UnitMinor:  item.UnitMinor,
			TotalMinor: item.TotalMinor,
		})
	}

	return &PendingSubmission{
		Ref:           order.ID,
		UserID:        userID,
		AmountMinor:   order.TotalMinor,
		Type:          submissionType,
		PaymentStatus: order.PaymentStatus,
		BookingStatus: order.BookingStatus,
		Items:         lines,
		Meta:          SubmissionMeta{Lines: lines},
		CreatedAt:     order.CreatedAt,
	}
}

// PaymentSnapshot records what the user just paid for. It backs both the local
// placeholder cache and the single last-payment record.
type PaymentSnapshot struct {
	Reference   string                   `json:"reference"`
	AmountMinor int64                    `json:"amountMinor"`
	Treatment   string                   `json:"treatment,omitempty"`
	Items       []map[string]interface{} `json:"items"`
	CreatedAt   time.Time                `json:"created_at"`
}
