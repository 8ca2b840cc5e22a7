package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/akazakov/tollgate/internal/shared/infrastructure/database"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/migrations"
	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.RunSQLiteMigrations(ctx, db))
	return NewSQLiteRepository(db)
}

func TestRecordIfNew_FirstAndDuplicate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	isNew, prior, err := repo.RecordIfNew(ctx, "evt-1", "payment.succeeded")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Nil(t, prior)

	isNew, prior, err = repo.RecordIfNew(ctx, "evt-1", "payment.succeeded")
	require.NoError(t, err)
	assert.False(t, isNew)
	require.NotNil(t, prior)
	assert.Equal(t, "evt-1", prior.EventID)
	assert.Equal(t, "payment.succeeded", prior.EventType)
	assert.Equal(t, OutcomeApplied, prior.Outcome)
	assert.False(t, prior.ProcessedAt.IsZero())
}

func TestRecordIfNew_DistinctEvents(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	isNew, _, err := repo.RecordIfNew(ctx, "evt-1", "payment.succeeded")
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, _, err = repo.RecordIfNew(ctx, "evt-2", "payment.canceled")
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestSetOutcome(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, _, err := repo.RecordIfNew(ctx, "evt-1", "refund.succeeded")
	require.NoError(t, err)

	require.NoError(t, repo.SetOutcome(ctx, "evt-1", OutcomeIgnored))

	rec, err := repo.Get(ctx, "evt-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, OutcomeIgnored, rec.Outcome)
}

func TestGet_Missing(t *testing.T) {
	repo := newTestRepo(t)

	rec, err := repo.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRecordIfNew_RollbackLeavesNoRecord(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.RunSQLiteMigrations(ctx, db))

	repo := NewSQLiteRepository(db)
	uow := sharedPersistence.NewSQLiteUnitOfWork(db)

	txCtx, err := uow.Begin(ctx)
	require.NoError(t, err)

	isNew, _, err := repo.RecordIfNew(txCtx, "evt-1", "payment.succeeded")
	require.NoError(t, err)
	assert.True(t, isNew)

	require.NoError(t, uow.Rollback(txCtx))

	rec, err := repo.Get(ctx, "evt-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDeleteAll(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, _, err := repo.RecordIfNew(ctx, "evt-1", "payment.succeeded")
	require.NoError(t, err)
	_, _, err = repo.RecordIfNew(ctx, "evt-2", "payment.succeeded")
	require.NoError(t, err)

	n, err := repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rec, err := repo.Get(ctx, "evt-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
