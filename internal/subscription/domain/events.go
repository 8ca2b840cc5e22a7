package domain

import (
	"time"

	sharedDomain "github.com/akazakov/tollgate/internal/shared/domain"
	"github.com/google/uuid"
)

const aggregateType = "Subscription"

// Routing keys for subscription events.
const (
	RoutingKeyAccessGrantRequested  = "access.grant.requested"
	RoutingKeyAccessRevokeRequested = "access.revoke.requested"
	RoutingKeySubscriptionExpired   = "subscription.expired"
	RoutingKeySubscriptionRenewed   = "subscription.renewed"
	RoutingKeySubscriptionExpiring  = "subscription.expiring"
)

// AccessGrantRequested asks the access layer to let the user into the channel.
type AccessGrantRequested struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         int64     `json:"user_id"`
	PaymentID      string    `json:"payment_id"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// NewAccessGrantRequested creates an AccessGrantRequested event.
func NewAccessGrantRequested(s *Subscription, paymentID string) *AccessGrantRequested {
	e := &AccessGrantRequested{
		BaseEvent:      sharedDomain.NewBaseEvent(s.ID(), aggregateType, RoutingKeyAccessGrantRequested),
		SubscriptionID: s.ID(),
		UserID:         s.UserID(),
		PaymentID:      paymentID,
		ExpiresAt:      s.ExpiresAt(),
	}
	e.SetMetadata(sharedDomain.EventMetadata{UserID: s.UserID()})
	return e
}

// AccessRevokeRequested asks the access layer to remove the user from the
// channel and invalidate any outstanding credential.
type AccessRevokeRequested struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         int64     `json:"user_id"`
	Reason         string    `json:"reason"`
}

// Revocation reasons.
const (
	RevokeReasonExpired  = "expired"
	RevokeReasonCanceled = "canceled"
	RevokeReasonRefunded = "refunded"
)

// NewAccessRevokeRequested creates an AccessRevokeRequested event.
func NewAccessRevokeRequested(s *Subscription, reason string) *AccessRevokeRequested {
	e := &AccessRevokeRequested{
		BaseEvent:      sharedDomain.NewBaseEvent(s.ID(), aggregateType, RoutingKeyAccessRevokeRequested),
		SubscriptionID: s.ID(),
		UserID:         s.UserID(),
		Reason:         reason,
	}
	e.SetMetadata(sharedDomain.EventMetadata{UserID: s.UserID()})
	return e
}

// SubscriptionExpired is emitted when the sweeper finalizes an expiry.
type SubscriptionExpired struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         int64     `json:"user_id"`
	ExpiredAt      time.Time `json:"expired_at"`
}

// NewSubscriptionExpired creates a SubscriptionExpired event.
func NewSubscriptionExpired(s *Subscription, expiredAt time.Time) *SubscriptionExpired {
	e := &SubscriptionExpired{
		BaseEvent:      sharedDomain.NewBaseEvent(s.ID(), aggregateType, RoutingKeySubscriptionExpired),
		SubscriptionID: s.ID(),
		UserID:         s.UserID(),
		ExpiredAt:      expiredAt,
	}
	e.SetMetadata(sharedDomain.EventMetadata{UserID: s.UserID()})
	return e
}

// SubscriptionExpiring warns that a subscription runs out soon, so the user
// can be nudged to renew before access lapses.
type SubscriptionExpiring struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         int64     `json:"user_id"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// NewSubscriptionExpiring creates a SubscriptionExpiring event.
func NewSubscriptionExpiring(s *Subscription) *SubscriptionExpiring {
	e := &SubscriptionExpiring{
		BaseEvent:      sharedDomain.NewBaseEvent(s.ID(), aggregateType, RoutingKeySubscriptionExpiring),
		SubscriptionID: s.ID(),
		UserID:         s.UserID(),
		ExpiresAt:      s.ExpiresAt(),
	}
	e.SetMetadata(sharedDomain.EventMetadata{UserID: s.UserID()})
	return e
}

// SubscriptionRenewed is emitted when a payment extends an existing period.
type SubscriptionRenewed struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         int64     `json:"user_id"`
	PaymentID      string    `json:"payment_id"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// NewSubscriptionRenewed creates a SubscriptionRenewed event.
func NewSubscriptionRenewed(s *Subscription, paymentID string) *SubscriptionRenewed {
	e := &SubscriptionRenewed{
		BaseEvent:      sharedDomain.NewBaseEvent(s.ID(), aggregateType, RoutingKeySubscriptionRenewed),
		SubscriptionID: s.ID(),
		UserID:         s.UserID(),
		PaymentID:      paymentID,
		ExpiresAt:      s.ExpiresAt(),
	}
	e.SetMetadata(sharedDomain.EventMetadata{UserID: s.UserID()})
	return e
}
