package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/akazakov/tollgate/internal/shared/infrastructure/database"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/migrations"
	"github.com/akazakov/tollgate/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.RunSQLiteMigrations(ctx, db))
	return db
}

func mustUser(t *testing.T, db *sql.DB, telegramID int64) {
	t.Helper()
	user, err := domain.NewUser(telegramID, "", "")
	require.NoError(t, err)
	require.NoError(t, NewSQLiteUserRepository(db).EnsureExists(context.Background(), user))
}

func activeSubscription(t *testing.T, userID int64, now time.Time) *domain.Subscription {
	t.Helper()
	sub, err := domain.NewSubscription(userID, "monthly")
	require.NoError(t, err)
	require.NoError(t, sub.Activate("pay-1", now, 720*time.Hour))
	return sub
}

func TestSubscriptionRepo_SaveAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	mustUser(t, db, 42)
	sub := activeSubscription(t, 42, now)
	require.NoError(t, repo.Save(ctx, sub))

	got, err := repo.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, sub.ID(), got.ID())
	assert.Equal(t, int64(42), got.UserID())
	assert.Equal(t, domain.StatusActive, got.Status())
	assert.True(t, got.ExpiresAt().Equal(now.Add(720*time.Hour)))
	assert.Equal(t, "pay-1", got.SourcePaymentID())
}

func TestSubscriptionRepo_GetCurrentByUser(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	mustUser(t, db, 42)

	_, err := repo.GetCurrentByUser(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)

	sub := activeSubscription(t, 42, now)
	require.NoError(t, repo.Save(ctx, sub))

	got, err := repo.GetCurrentByUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, sub.ID(), got.ID())

	// Canceled subscriptions are not current.
	got.Cancel()
	require.NoError(t, repo.Update(ctx, got))
	_, err = repo.GetCurrentByUser(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}

func TestSubscriptionRepo_ListDue(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	mustUser(t, db, 1)
	mustUser(t, db, 2)
	mustUser(t, db, 3)

	// Expired active subscription.
	overdue := activeSubscription(t, 1, now.Add(-800*time.Hour))
	require.NoError(t, repo.Save(ctx, overdue))

	// Still current.
	current := activeSubscription(t, 2, now)
	require.NoError(t, repo.Save(ctx, current))

	// Grace past its deadline.
	lapsed := activeSubscription(t, 3, now.Add(-900*time.Hour))
	require.NoError(t, lapsed.BeginGrace(lapsed.ExpiresAt(), 48*time.Hour))
	require.NoError(t, repo.Save(ctx, lapsed))

	due, err := repo.ListDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)

	ids := map[int64]bool{}
	for _, s := range due {
		ids[s.UserID()] = true
	}
	assert.True(t, ids[1])
	assert.True(t, ids[3])
	assert.False(t, ids[2])
}

func TestSubscriptionRepo_UpdateExpiriesBefore(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	target := now.Add(72 * time.Hour)

	mustUser(t, db, 1)
	mustUser(t, db, 2)

	early := activeSubscription(t, 1, now.Add(-719*time.Hour)) // expires within an hour
	require.NoError(t, repo.Save(ctx, early))
	late := activeSubscription(t, 2, now) // expires well past target
	require.NoError(t, repo.Save(ctx, late))

	n, err := repo.UpdateExpiriesBefore(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetByID(ctx, early.ID())
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt().Equal(target))

	unchanged, err := repo.GetByID(ctx, late.ID())
	require.NoError(t, err)
	assert.True(t, unchanged.ExpiresAt().Equal(late.ExpiresAt()))
}

func TestUserRepo_EnsureExistsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteUserRepository(db)
	ctx := context.Background()

	user, err := domain.NewUser(42, "alice", "")
	require.NoError(t, err)
	require.NoError(t, repo.EnsureExists(ctx, user))
	require.NoError(t, repo.EnsureExists(ctx, user))

	got, err := repo.GetByID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPaymentRepo_SaveUpdateGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLitePaymentRepository(db)
	ctx := context.Background()

	payment := domain.NewPayment("pay-1", 42, "2990.00", "RUB", "https://pay.example/confirm")
	require.NoError(t, repo.Save(ctx, payment))

	payment.MarkSucceeded()
	require.NoError(t, repo.Update(ctx, payment))

	got, err := repo.GetByID(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSucceeded, got.Status)
	assert.Equal(t, "2990.00", got.Amount)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestPaymentRepo_LatestPendingByUser(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLitePaymentRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	old := domain.NewPayment("pay-old", 42, "2990.00", "RUB", "")
	old.CreatedAt = now.Add(-time.Hour)
	require.NoError(t, repo.Save(ctx, old))

	fresh := domain.NewPayment("pay-fresh", 42, "2990.00", "RUB", "")
	require.NoError(t, repo.Save(ctx, fresh))

	got, err := repo.LatestPendingByUser(ctx, 42, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "pay-fresh", got.PaymentID)

	_, err = repo.LatestPendingByUser(ctx, 99, now.Add(-10*time.Minute))
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}
