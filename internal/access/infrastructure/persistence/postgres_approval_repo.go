package persistence

import (
	"context"
	"time"

	"github.com/akazakov/tollgate/internal/access/domain"
	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresApprovalRepository implements domain.ApprovalRepository on PostgreSQL.
type PostgresApprovalRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresApprovalRepository creates a new PostgreSQL approval repository.
func NewPostgresApprovalRepository(pool *pgxpool.Pool) *PostgresApprovalRepository {
	return &PostgresApprovalRepository{pool: pool}
}

// Record stores the approval, overwriting any earlier timestamp.
func (r *PostgresApprovalRepository) Record(ctx context.Context, userID int64, at time.Time) error {
	db := sharedPersistence.Executor(ctx, r.pool)
	_, err := db.Exec(ctx,
		`INSERT INTO approved_users (telegram_user_id, approved_at)
		 VALUES ($1, $2)
		 ON CONFLICT (telegram_user_id) DO UPDATE SET approved_at = EXCLUDED.approved_at`,
		userID, at.UTC(),
	)
	return err
}

// IsApproved reports whether the user was let into the channel.
func (r *PostgresApprovalRepository) IsApproved(ctx context.Context, userID int64) (bool, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	var n int64
	err := db.QueryRow(ctx,
		`SELECT COUNT(*) FROM approved_users WHERE telegram_user_id = $1`,
		userID,
	).Scan(&n)
	return n > 0, err
}

// Remove clears the approval.
func (r *PostgresApprovalRepository) Remove(ctx context.Context, userID int64) error {
	db := sharedPersistence.Executor(ctx, r.pool)
	_, err := db.Exec(ctx,
		`DELETE FROM approved_users WHERE telegram_user_id = $1`, userID)
	return err
}

// DeleteAll removes every approval.
func (r *PostgresApprovalRepository) DeleteAll(ctx context.Context) (int64, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	tag, err := db.Exec(ctx, `DELETE FROM approved_users`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of approved users.
func (r *PostgresApprovalRepository) Count(ctx context.Context) (int64, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	var n int64
	err := db.QueryRow(ctx, `SELECT COUNT(*) FROM approved_users`).Scan(&n)
	return n, err
}

var _ domain.ApprovalRepository = (*PostgresApprovalRepository)(nil)
