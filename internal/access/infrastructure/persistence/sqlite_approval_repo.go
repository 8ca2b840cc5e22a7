package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/akazakov/tollgate/internal/access/domain"
)

// SQLiteApprovalRepository implements domain.ApprovalRepository on SQLite.
type SQLiteApprovalRepository struct {
	dbConn *sql.DB
}

// NewSQLiteApprovalRepository creates a new SQLite approval repository.
func NewSQLiteApprovalRepository(dbConn *sql.DB) *SQLiteApprovalRepository {
	return &SQLiteApprovalRepository{dbConn: dbConn}
}

// Record stores the approval, overwriting any earlier timestamp.
func (r *SQLiteApprovalRepository) Record(ctx context.Context, userID int64, at time.Time) error {
	db := getDB(ctx, r.dbConn)
	_, err := db.ExecContext(ctx,
		`INSERT INTO approved_users (telegram_user_id, approved_at)
		 VALUES (?, ?)
		 ON CONFLICT (telegram_user_id) DO UPDATE SET approved_at = excluded.approved_at`,
		userID, at.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// IsApproved reports whether the user was let into the channel.
func (r *SQLiteApprovalRepository) IsApproved(ctx context.Context, userID int64) (bool, error) {
	db := getDB(ctx, r.dbConn)
	var n int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM approved_users WHERE telegram_user_id = ?`,
		userID,
	).Scan(&n)
	return n > 0, err
}

// Remove clears the approval.
func (r *SQLiteApprovalRepository) Remove(ctx context.Context, userID int64) error {
	db := getDB(ctx, r.dbConn)
	_, err := db.ExecContext(ctx,
		`DELETE FROM approved_users WHERE telegram_user_id = ?`, userID)
	return err
}

// DeleteAll removes every approval.
func (r *SQLiteApprovalRepository) DeleteAll(ctx context.Context) (int64, error) {
	db := getDB(ctx, r.dbConn)
	result, err := db.ExecContext(ctx, `DELETE FROM approved_users`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Count returns the number of approved users.
func (r *SQLiteApprovalRepository) Count(ctx context.Context) (int64, error) {
	db := getDB(ctx, r.dbConn)
	var n int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM approved_users`).Scan(&n)
	return n, err
}

var _ domain.ApprovalRepository = (*SQLiteApprovalRepository)(nil)
