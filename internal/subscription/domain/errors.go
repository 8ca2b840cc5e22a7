package domain

import "errors"

var (
	ErrInvalidUserID        = errors.New("user id must be a non-zero platform identity")
	ErrInvalidPlan          = errors.New("plan must not be empty")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionCanceled = errors.New("subscription is canceled")
	ErrInvalidTransition    = errors.New("invalid subscription state transition")
	ErrNotYetDue            = errors.New("subscription is not yet due for this transition")
	ErrUserNotFound         = errors.New("user not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrUnknownEventType     = errors.New("unknown payment event type")
)
