package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow      = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	planDuration = 720 * time.Hour
	gracePeriod  = 48 * time.Hour
)

func newActive(t *testing.T) *Subscription {
	t.Helper()
	sub, err := NewSubscription(42, "monthly")
	require.NoError(t, err)
	require.NoError(t, sub.Activate("pay-1", testNow, planDuration))
	return sub
}

func TestNewSubscription(t *testing.T) {
	sub, err := NewSubscription(42, "monthly")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, sub.Status())
	assert.Equal(t, int64(42), sub.UserID())
	assert.True(t, sub.ExpiresAt().IsZero())
}

func TestNewSubscription_Validation(t *testing.T) {
	_, err := NewSubscription(0, "monthly")
	assert.ErrorIs(t, err, ErrInvalidUserID)

	_, err = NewSubscription(42, "")
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestActivate(t *testing.T) {
	sub, err := NewSubscription(42, "monthly")
	require.NoError(t, err)

	require.NoError(t, sub.Activate("pay-1", testNow, planDuration))

	assert.Equal(t, StatusActive, sub.Status())
	assert.Equal(t, testNow, sub.StartedAt())
	assert.Equal(t, testNow.Add(planDuration), sub.ExpiresAt())
	assert.Equal(t, "pay-1", sub.SourcePaymentID())
}

func TestActivate_FromExpired(t *testing.T) {
	sub := newActive(t)
	later := sub.ExpiresAt().Add(gracePeriod)
	require.NoError(t, sub.BeginGrace(sub.ExpiresAt(), gracePeriod))
	require.NoError(t, sub.Expire(later))

	require.NoError(t, sub.Activate("pay-2", later, planDuration))
	assert.Equal(t, StatusActive, sub.Status())
	assert.Equal(t, later.Add(planDuration), sub.ExpiresAt())
}

func TestActivate_FromActiveRejected(t *testing.T) {
	sub := newActive(t)
	assert.ErrorIs(t, sub.Activate("pay-2", testNow, planDuration), ErrInvalidTransition)
}

func TestExtend_BeforeExpiry(t *testing.T) {
	sub := newActive(t)
	renewAt := testNow.Add(200 * time.Hour)

	require.NoError(t, sub.Extend("pay-2", renewAt, planDuration))

	// Early renewal stacks onto the current expiry, not onto now.
	assert.Equal(t, testNow.Add(planDuration).Add(planDuration), sub.ExpiresAt())
	assert.Equal(t, StatusActive, sub.Status())
}

func TestExtend_DuringGrace(t *testing.T) {
	sub := newActive(t)
	expiry := sub.ExpiresAt()
	require.NoError(t, sub.BeginGrace(expiry, gracePeriod))

	renewAt := expiry.Add(24 * time.Hour)
	require.NoError(t, sub.Extend("pay-2", renewAt, planDuration))

	// Renewal inside grace starts from now, not from the lapsed expiry.
	assert.Equal(t, renewAt.Add(planDuration), sub.ExpiresAt())
	assert.Equal(t, StatusActive, sub.Status())
	assert.True(t, sub.GraceUntil().IsZero())
}

func TestExtend_FromPendingRejected(t *testing.T) {
	sub, err := NewSubscription(42, "monthly")
	require.NoError(t, err)
	assert.ErrorIs(t, sub.Extend("pay-1", testNow, planDuration), ErrInvalidTransition)
}

func TestBeginGrace(t *testing.T) {
	sub := newActive(t)
	expiry := sub.ExpiresAt()

	require.NoError(t, sub.BeginGrace(expiry, gracePeriod))

	assert.Equal(t, StatusGrace, sub.Status())
	assert.Equal(t, expiry.Add(gracePeriod), sub.GraceUntil())
}

func TestBeginGrace_BeforeExpiryRejected(t *testing.T) {
	sub := newActive(t)
	assert.ErrorIs(t, sub.BeginGrace(testNow, gracePeriod), ErrNotYetDue)
}

func TestExpire(t *testing.T) {
	sub := newActive(t)
	expiry := sub.ExpiresAt()
	require.NoError(t, sub.BeginGrace(expiry, gracePeriod))

	assert.ErrorIs(t, sub.Expire(expiry.Add(time.Hour)), ErrNotYetDue)

	require.NoError(t, sub.Expire(expiry.Add(gracePeriod)))
	assert.Equal(t, StatusExpired, sub.Status())
}

func TestExpire_ActiveWithoutGrace(t *testing.T) {
	sub := newActive(t)
	require.NoError(t, sub.Expire(sub.ExpiresAt()))
	assert.Equal(t, StatusExpired, sub.Status())
}

func TestCancel_Absorbing(t *testing.T) {
	sub := newActive(t)

	sub.Cancel()
	assert.Equal(t, StatusCanceled, sub.Status())

	// Nothing leaves canceled.
	assert.ErrorIs(t, sub.Activate("pay-2", testNow, planDuration), ErrSubscriptionCanceled)
	assert.ErrorIs(t, sub.Extend("pay-2", testNow, planDuration), ErrSubscriptionCanceled)
	assert.ErrorIs(t, sub.BeginGrace(testNow, gracePeriod), ErrSubscriptionCanceled)
	assert.ErrorIs(t, sub.Expire(testNow), ErrSubscriptionCanceled)

	sub.Cancel()
	assert.Equal(t, StatusCanceled, sub.Status())
}

func TestEffectiveStatus(t *testing.T) {
	sub := newActive(t)
	expiry := sub.ExpiresAt()

	assert.Equal(t, StatusActive, sub.EffectiveStatus(testNow, gracePeriod))
	assert.Equal(t, StatusGrace, sub.EffectiveStatus(expiry, gracePeriod))
	assert.Equal(t, StatusGrace, sub.EffectiveStatus(expiry.Add(gracePeriod-time.Second), gracePeriod))
	assert.Equal(t, StatusExpired, sub.EffectiveStatus(expiry.Add(gracePeriod), gracePeriod))

	sub.Cancel()
	assert.Equal(t, StatusCanceled, sub.EffectiveStatus(testNow, gracePeriod))
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusActive.GrantsAccess())
	assert.True(t, StatusGrace.GrantsAccess())
	assert.False(t, StatusPending.GrantsAccess())
	assert.False(t, StatusExpired.GrantsAccess())
	assert.False(t, StatusCanceled.GrantsAccess())
	assert.True(t, StatusCanceled.Terminal())
	assert.False(t, StatusExpired.Terminal())
}
