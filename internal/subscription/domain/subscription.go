// Package domain holds the subscription lifecycle model. A subscription
// moves pending -> active -> grace -> expired as payments arrive and time
// passes; canceled absorbs from any state and nothing leaves it.
package domain

import (
	"time"

	sharedDomain "github.com/akazakov/tollgate/internal/shared/domain"
	"github.com/google/uuid"
)

// Status represents the lifecycle state of a subscription.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusGrace    Status = "grace"
	StatusExpired  Status = "expired"
	StatusCanceled Status = "canceled"
)

// GrantsAccess reports whether the status still entitles channel membership.
func (s Status) GrantsAccess() bool {
	return s == StatusActive || s == StatusGrace
}

// Terminal reports whether the status can never change again.
func (s Status) Terminal() bool {
	return s == StatusCanceled
}

// Subscription is the aggregate tracking one user's paid access.
type Subscription struct {
	sharedDomain.BaseEntity
	userID          int64
	plan            string
	status          Status
	startedAt       time.Time
	expiresAt       time.Time
	graceUntil      time.Time
	sourcePaymentID string
}

// NewSubscription creates a pending subscription awaiting its first payment.
func NewSubscription(userID int64, plan string) (*Subscription, error) {
	if userID == 0 {
		return nil, ErrInvalidUserID
	}
	if plan == "" {
		return nil, ErrInvalidPlan
	}
	return &Subscription{
		BaseEntity: sharedDomain.NewBaseEntity(),
		userID:     userID,
		plan:       plan,
		status:     StatusPending,
	}, nil
}

// Rehydrate recreates a subscription from persisted state.
func Rehydrate(
	id uuid.UUID,
	userID int64,
	plan string,
	status Status,
	startedAt, expiresAt, graceUntil time.Time,
	sourcePaymentID string,
	createdAt, updatedAt time.Time,
) *Subscription {
	return &Subscription{
		BaseEntity:      sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		userID:          userID,
		plan:            plan,
		status:          status,
		startedAt:       startedAt,
		expiresAt:       expiresAt,
		graceUntil:      graceUntil,
		sourcePaymentID: sourcePaymentID,
	}
}

func (s *Subscription) UserID() int64           { return s.userID }
func (s *Subscription) Plan() string            { return s.plan }
func (s *Subscription) Status() Status          { return s.status }
func (s *Subscription) StartedAt() time.Time    { return s.startedAt }
func (s *Subscription) ExpiresAt() time.Time    { return s.expiresAt }
func (s *Subscription) GraceUntil() time.Time   { return s.graceUntil }
func (s *Subscription) SourcePaymentID() string { return s.sourcePaymentID }

// Activate starts the paid period on a pending subscription.
func (s *Subscription) Activate(paymentID string, now time.Time, duration time.Duration) error {
	if s.status.Terminal() {
		return ErrSubscriptionCanceled
	}
	if s.status != StatusPending && s.status != StatusExpired {
		return ErrInvalidTransition
	}
	s.status = StatusActive
	s.startedAt = now
	s.expiresAt = now.Add(duration)
	s.graceUntil = time.Time{}
	s.sourcePaymentID = paymentID
	s.Touch()
	return nil
}

// Extend renews an active or grace subscription. The new period starts from
// whichever is later: now or the current expiry. Renewing ahead of time never
// costs the remaining days, and renewing inside grace does not backdate.
func (s *Subscription) Extend(paymentID string, now time.Time, duration time.Duration) error {
	if s.status.Terminal() {
		return ErrSubscriptionCanceled
	}
	if !s.status.GrantsAccess() {
		return ErrInvalidTransition
	}
	base := now
	if s.expiresAt.After(now) {
		base = s.expiresAt
	}
	s.status = StatusActive
	s.expiresAt = base.Add(duration)
	s.graceUntil = time.Time{}
	s.sourcePaymentID = paymentID
	s.Touch()
	return nil
}

// BeginGrace moves an expired-but-active subscription into the grace period.
func (s *Subscription) BeginGrace(now time.Time, gracePeriod time.Duration) error {
	if s.status.Terminal() {
		return ErrSubscriptionCanceled
	}
	if s.status != StatusActive {
		return ErrInvalidTransition
	}
	if s.expiresAt.After(now) {
		return ErrNotYetDue
	}
	s.status = StatusGrace
	s.graceUntil = s.expiresAt.Add(gracePeriod)
	s.Touch()
	return nil
}

// Expire finalizes a subscription whose grace period ran out.
func (s *Subscription) Expire(now time.Time) error {
	if s.status.Terminal() {
		return ErrSubscriptionCanceled
	}
	switch s.status {
	case StatusGrace:
		if s.graceUntil.After(now) {
			return ErrNotYetDue
		}
	case StatusActive:
		if s.expiresAt.After(now) {
			return ErrNotYetDue
		}
	default:
		return ErrInvalidTransition
	}
	s.status = StatusExpired
	s.Touch()
	return nil
}

// Cancel moves the subscription to the canceled state. Canceled absorbs from
// every state, including itself, so repeated cancellations are harmless.
func (s *Subscription) Cancel() {
	if s.status == StatusCanceled {
		return
	}
	s.status = StatusCanceled
	s.graceUntil = time.Time{}
	s.Touch()
}

// SetExpiresAt overwrites the expiry directly. Used by administrative
// backfill, not by the normal lifecycle.
func (s *Subscription) SetExpiresAt(expiresAt time.Time) {
	s.expiresAt = expiresAt
	s.Touch()
}

// EffectiveStatus derives what the status would be at the given instant,
// regardless of whether the sweeper has caught up with the stored state.
func (s *Subscription) EffectiveStatus(now time.Time, gracePeriod time.Duration) Status {
	switch s.status {
	case StatusActive:
		if s.expiresAt.After(now) {
			return StatusActive
		}
		if s.expiresAt.Add(gracePeriod).After(now) {
			return StatusGrace
		}
		return StatusExpired
	case StatusGrace:
		if s.graceUntil.After(now) {
			return StatusGrace
		}
		return StatusExpired
	default:
		return s.status
	}
}
