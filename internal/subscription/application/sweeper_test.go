package application

import (
	"context"
	"testing"
	"time"

	"github.com/akazakov/tollgate/internal/promo"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/cache"
	"github.com/akazakov/tollgate/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSweeper(t *testing.T, st *testStack, marker cache.OnceMarker, now time.Time) *Sweeper {
	t.Helper()
	sw := NewSweeper(st.uow, st.subs, st.outbox, marker, DefaultSweeperConfig(), nil)
	sw.now = func() time.Time { return now }
	return sw
}

func seedActive(t *testing.T, st *testStack, userID int64, activatedAt time.Time) *domain.Subscription {
	t.Helper()
	ctx := context.Background()

	user, err := domain.NewUser(userID, "", "")
	require.NoError(t, err)
	require.NoError(t, st.users.EnsureExists(ctx, user))

	sub, err := domain.NewSubscription(userID, "monthly")
	require.NoError(t, err)
	require.NoError(t, sub.Activate("pay-seed", activatedAt, 720*time.Hour))
	require.NoError(t, st.subs.Save(ctx, sub))
	return sub
}

func TestSweeper_ActivePastExpiryEntersGrace(t *testing.T) {
	st := newTestStack(t, promo.Window{})
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	sub := seedActive(t, st, 1, now.Add(-721*time.Hour))
	sw := newTestSweeper(t, st, nil, now)

	moved, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	got, err := st.subs.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusGrace, got.Status())
	assert.True(t, got.GraceUntil().Equal(got.ExpiresAt().Add(48*time.Hour)))

	// Grace is silent; no revocation yet.
	assert.Empty(t, stagedKeys(t, st))
}

func TestSweeper_GracePastDeadlineExpires(t *testing.T) {
	st := newTestStack(t, promo.Window{})
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	sub := seedActive(t, st, 1, now.Add(-721*time.Hour))
	loaded, err := st.subs.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	require.NoError(t, loaded.BeginGrace(loaded.ExpiresAt(), 30*time.Minute))
	require.NoError(t, st.subs.Update(ctx, loaded))

	sw := newTestSweeper(t, st, nil, now)
	moved, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	got, err := st.subs.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status())

	keys := stagedKeys(t, st)
	assert.Contains(t, keys, domain.RoutingKeyAccessRevokeRequested)
	assert.Contains(t, keys, domain.RoutingKeySubscriptionExpired)
}

func TestSweeper_CatchesUpAfterDowntime(t *testing.T) {
	st := newTestStack(t, promo.Window{})
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	// Expiry and the grace deadline are both long past.
	sub := seedActive(t, st, 1, now.Add(-2000*time.Hour))
	sw := newTestSweeper(t, st, nil, now)

	moved, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	got, err := st.subs.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status())
	assert.Contains(t, stagedKeys(t, st), domain.RoutingKeyAccessRevokeRequested)
}

func TestSweeper_LeavesCurrentAlone(t *testing.T) {
	st := newTestStack(t, promo.Window{})
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	sub := seedActive(t, st, 1, now.Add(-time.Hour))
	sw := newTestSweeper(t, st, nil, now)

	moved, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, moved)

	got, err := st.subs.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status())
}

func TestSweeper_ReminderFiresOnce(t *testing.T) {
	st := newTestStack(t, promo.Window{})
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	// Expires in 10 hours, within the 24 hour reminder lead.
	seedActive(t, st, 1, now.Add(-710*time.Hour))

	marker := cache.NewMemoryOnceMarker()
	sw := newTestSweeper(t, st, marker, now)

	require.NoError(t, sw.remindExpiring(ctx))
	require.NoError(t, sw.remindExpiring(ctx))

	count := 0
	for _, key := range stagedKeys(t, st) {
		if key == domain.RoutingKeySubscriptionExpiring {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSweeper_NoReminderOutsideLead(t *testing.T) {
	st := newTestStack(t, promo.Window{})
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	seedActive(t, st, 1, now) // expires in 720 hours

	sw := newTestSweeper(t, st, cache.NewMemoryOnceMarker(), now)
	require.NoError(t, sw.remindExpiring(ctx))
	assert.Empty(t, stagedKeys(t, st))
}
