package model

import "time"

// PaymentStatus enumerates forward-only transitions (except REFUNDED, which
// can arrive from SUCCESS or LATE at any time before finalization).
type PaymentStatus string

const (
	PaymentCreated  PaymentStatus = "CREATED"
	PaymentVerified PaymentStatus = "VERIFIED"
	PaymentSuccess  PaymentStatus = "SUCCESS"
	PaymentLate     PaymentStatus = "LATE"
	PaymentRefunded PaymentStatus = "REFUNDED"
	PaymentFailed   PaymentStatus = "FAILED"
)

// PaymentType distinguishes a real capture from a synthetic free-entry
// credit granted by the Admission Service.
type PaymentType string

const (
	PaymentTypeNormal     PaymentType = "NORMAL"
	PaymentTypeFreeCredit PaymentType = "FREE_CREDIT"
)

// Payment is the one-per-(user,date) payment record the Eligibility
// Evaluator reads to decide PAYMENT_MISSING (no payment, or a LATE capture)
// and REFUND_VOIDS_ELIGIBILITY.
type Payment struct {
	ID          string        `json:"id"`
	UserID      int           `json:"user_id"`
	QuizDate    string        `json:"quiz_date"`
	Status      PaymentStatus `json:"status"`
	Type        PaymentType   `json:"type"`
	AmountCents int64         `json:"amount_cents"`
	ExternalRef string        `json:"external_ref,omitempty"`
	EventID     string        `json:"event_id,omitempty"`
	CapturedAt  *time.Time    `json:"captured_at,omitempty"`
	RefundedAt  *time.Time    `json:"refunded_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// PaymentWebhookEvent is the normalized shape of an inbound signed webhook
// event, after signature verification (internals of verification are out of
// scope per the spec; only the idempotency/cutoff contract is implemented
// here).
type PaymentWebhookEvent struct {
	EventID     string    `json:"event_id"`
	OrderID     string    `json:"order_id"`
	UserID      int       `json:"user_id"`
	QuizDate    string    `json:"quiz_date"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"` // gateway's own status string, e.g. "captured", "refunded"
	CreatedAt   time.Time `json:"created_at"`
}
