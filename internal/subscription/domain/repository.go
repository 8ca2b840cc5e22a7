package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionRepository stores subscriptions.
type SubscriptionRepository interface {
	Save(ctx context.Context, sub *Subscription) error
	Update(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// GetCurrentByUser returns the user's subscription that still grants or
	// may again grant access (pending, active or grace), or
	// ErrSubscriptionNotFound.
	GetCurrentByUser(ctx context.Context, userID int64) (*Subscription, error)

	// ListDue returns subscriptions whose stored status lags the clock:
	// active past expiry, or grace past the grace deadline.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)

	// ListExpiringBefore returns active subscriptions expiring before the
	// cutoff, for expiry reminders.
	ListExpiringBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Subscription, error)

	// UpdateExpiriesBefore raises every expiry earlier than the target to the
	// target, for administrative backfill. Returns the number of rows changed.
	UpdateExpiriesBefore(ctx context.Context, target time.Time) (int64, error)

	DeleteAll(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// UserRepository stores channel customers.
type UserRepository interface {
	Save(ctx context.Context, user *User) error
	GetByID(ctx context.Context, telegramID int64) (*User, error)

	// EnsureExists creates the user if unseen. First contact is often the
	// payment webhook, not a bot interaction.
	EnsureExists(ctx context.Context, user *User) error

	DeleteAll(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// PaymentRepository stores local payment records.
type PaymentRepository interface {
	Save(ctx context.Context, payment *Payment) error
	Update(ctx context.Context, payment *Payment) error
	GetByID(ctx context.Context, paymentID string) (*Payment, error)

	// LatestPendingByUser returns the user's most recent pending payment
	// created after since, or ErrPaymentNotFound. Lets the payment-link
	// endpoint reuse a fresh link instead of minting a new processor payment.
	LatestPendingByUser(ctx context.Context, userID int64, since time.Time) (*Payment, error)

	DeleteAll(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
}
