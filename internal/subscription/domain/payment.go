package domain

import "time"

// PaymentStatus mirrors the processor-side state of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentCanceled  PaymentStatus = "canceled"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Payment is the local record of a processor payment. The processor is the
// source of truth; this row exists so renewals and refunds can be tied back
// to the user without a processor round trip.
type Payment struct {
	PaymentID       string
	UserID          int64
	Amount          string
	Currency        string
	Status          PaymentStatus
	ConfirmationURL string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewPayment creates a pending payment record.
func NewPayment(paymentID string, userID int64, amount, currency, confirmationURL string) *Payment {
	now := time.Now().UTC()
	return &Payment{
		PaymentID:       paymentID,
		UserID:          userID,
		Amount:          amount,
		Currency:        currency,
		Status:          PaymentPending,
		ConfirmationURL: confirmationURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// MarkSucceeded records the processor's success notification.
func (p *Payment) MarkSucceeded() {
	p.Status = PaymentSucceeded
	p.UpdatedAt = time.Now().UTC()
}

// MarkCanceled records the processor's cancellation notification.
func (p *Payment) MarkCanceled() {
	p.Status = PaymentCanceled
	p.UpdatedAt = time.Now().UTC()
}

// MarkRefunded records a successful refund.
func (p *Payment) MarkRefunded() {
	p.Status = PaymentRefunded
	p.UpdatedAt = time.Now().UTC()
}
