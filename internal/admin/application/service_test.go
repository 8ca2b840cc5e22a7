package application

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	accessPersistence "github.com/akazakov/tollgate/internal/access/infrastructure/persistence"
	adminPersistence "github.com/akazakov/tollgate/internal/admin/infrastructure/persistence"
	"github.com/akazakov/tollgate/internal/ledger"
	"github.com/akazakov/tollgate/internal/promo"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/database"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/migrations"
	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
	subDomain "github.com/akazakov/tollgate/internal/subscription/domain"
	subPersistence "github.com/akazakov/tollgate/internal/subscription/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type adminStack struct {
	service   *Service
	evaluator *promo.Evaluator
	subs      subDomain.SubscriptionRepository
	users     subDomain.UserRepository
	settings  *adminPersistence.SQLiteSettingsRepository
}

func newAdminStack(t *testing.T) *adminStack {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.RunSQLiteMigrations(ctx, db))

	evaluator := promo.NewEvaluator(promo.EvaluatorConfig{
		PriceRegular:   "2990.00",
		PriceBonus:     "1.00",
		Currency:       "RUB",
		PlanDuration:   720 * time.Hour,
		BonusExtension: 168 * time.Hour,
	})

	st := &adminStack{
		evaluator: evaluator,
		subs:      subPersistence.NewSQLiteSubscriptionRepository(db),
		users:     subPersistence.NewSQLiteUserRepository(db),
		settings:  adminPersistence.NewSQLiteSettingsRepository(db),
	}
	st.service = NewService(
		sharedPersistence.NewSQLiteUnitOfWork(db),
		st.subs,
		st.users,
		subPersistence.NewSQLitePaymentRepository(db),
		accessPersistence.NewSQLiteCredentialRepository(db),
		accessPersistence.NewSQLiteApprovalRepository(db),
		ledger.NewSQLiteRepository(db),
		st.settings,
		evaluator,
		nil,
	)
	return st
}

func seedSubscriber(t *testing.T, st *adminStack, userID int64, activatedAt time.Time) *subDomain.Subscription {
	t.Helper()
	ctx := context.Background()

	user, err := subDomain.NewUser(userID, "", "")
	require.NoError(t, err)
	require.NoError(t, st.users.EnsureExists(ctx, user))

	sub, err := subDomain.NewSubscription(userID, "monthly")
	require.NoError(t, err)
	require.NoError(t, sub.Activate("pay-1", activatedAt, 720*time.Hour))
	require.NoError(t, st.subs.Save(ctx, sub))
	return sub
}

func TestPurge(t *testing.T) {
	st := newAdminStack(t)
	ctx := context.Background()

	seedSubscriber(t, st, 1, time.Now().UTC())
	seedSubscriber(t, st, 2, time.Now().UTC())

	report, err := st.service.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Users)
	assert.Equal(t, int64(2), report.Subscriptions)

	stats, err := st.service.CollectStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestResetWindow_PersistsAndApplies(t *testing.T) {
	st := newAdminStack(t)
	ctx := context.Background()

	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 7, 8, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.service.ResetWindow(ctx, promo.Window{Start: start, End: end}))

	got := st.evaluator.Window()
	assert.True(t, got.Start.Equal(start))
	assert.True(t, got.End.Equal(end))

	// A fresh evaluator picks the override up from the settings store.
	st.evaluator.SetWindow(promo.Window{})
	require.NoError(t, st.service.LoadWindow(ctx))
	got = st.evaluator.Window()
	assert.True(t, got.Start.Equal(start))
	assert.True(t, got.End.Equal(end))
}

func TestResetWindow_ZeroClearsOverride(t *testing.T) {
	st := newAdminStack(t)
	ctx := context.Background()

	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.service.ResetWindow(ctx, promo.Window{Start: start, End: start.Add(24 * time.Hour)}))
	require.NoError(t, st.service.ResetWindow(ctx, promo.Window{}))

	assert.True(t, st.evaluator.Window().IsZero())

	// Nothing left to load.
	st.evaluator.SetWindow(promo.Window{Start: start, End: start.Add(time.Hour)})
	require.NoError(t, st.service.LoadWindow(ctx))
	assert.False(t, st.evaluator.Window().IsZero())
}

func TestResetWindow_RejectsInvertedWindow(t *testing.T) {
	st := newAdminStack(t)

	end := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	err := st.service.ResetWindow(context.Background(), promo.Window{
		Start: end.Add(time.Hour),
		End:   end,
	})
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestBackfillExpiry(t *testing.T) {
	st := newAdminStack(t)
	ctx := context.Background()
	now := time.Now().UTC()
	target := now.Add(96 * time.Hour)

	early := seedSubscriber(t, st, 1, now.Add(-719*time.Hour))
	late := seedSubscriber(t, st, 2, now)

	n, err := st.service.BackfillExpiry(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := st.subs.GetByID(ctx, early.ID())
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt().Equal(target))

	unchanged, err := st.subs.GetByID(ctx, late.ID())
	require.NoError(t, err)
	assert.True(t, unchanged.ExpiresAt().Equal(late.ExpiresAt()))
}

func TestCollectStats(t *testing.T) {
	st := newAdminStack(t)

	seedSubscriber(t, st, 1, time.Now().UTC())

	stats, err := st.service.CollectStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Users)
	assert.Equal(t, int64(1), stats.Subscriptions)
	assert.Equal(t, int64(0), stats.Payments)
}
