// Package persistence provides SQLite and PostgreSQL repositories for the
// subscription module.
package persistence

import (
	"context"
	"database/sql"
	"time"

	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
	"github.com/akazakov/tollgate/internal/subscription/domain"
	"github.com/google/uuid"
)

// SQLiteSubscriptionRepository implements domain.SubscriptionRepository on SQLite.
type SQLiteSubscriptionRepository struct {
	dbConn *sql.DB
}

// NewSQLiteSubscriptionRepository creates a new SQLite subscription repository.
func NewSQLiteSubscriptionRepository(dbConn *sql.DB) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{dbConn: dbConn}
}

type sqliteQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDB(ctx context.Context, fallback *sql.DB) sqliteQuerier {
	if info, ok := sharedPersistence.SQLiteTxInfoFromContext(ctx); ok {
		return info.Tx
	}
	return fallback
}

const subscriptionColumns = `id, user_id, plan, status, started_at, expires_at, grace_until, source_payment_id, created_at, updated_at`

// Save stores a new subscription.
func (r *SQLiteSubscriptionRepository) Save(ctx context.Context, sub *domain.Subscription) error {
	db := getDB(ctx, r.dbConn)
	_, err := db.ExecContext(ctx,
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID().String(),
		sub.UserID(),
		sub.Plan(),
		string(sub.Status()),
		timeToNull(sub.StartedAt()),
		timeToNull(sub.ExpiresAt()),
		timeToNull(sub.GraceUntil()),
		strToNull(sub.SourcePaymentID()),
		sub.CreatedAt().UTC().Format(time.RFC3339Nano),
		sub.UpdatedAt().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Update persists changes to an existing subscription.
func (r *SQLiteSubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	db := getDB(ctx, r.dbConn)
	result, err := db.ExecContext(ctx,
		`UPDATE subscriptions
		 SET plan = ?, status = ?, started_at = ?, expires_at = ?, grace_until = ?,
		     source_payment_id = ?, updated_at = ?
		 WHERE id = ?`,
		sub.Plan(),
		string(sub.Status()),
		timeToNull(sub.StartedAt()),
		timeToNull(sub.ExpiresAt()),
		timeToNull(sub.GraceUntil()),
		strToNull(sub.SourcePaymentID()),
		sub.UpdatedAt().UTC().Format(time.RFC3339Nano),
		sub.ID().String(),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// GetByID loads a subscription by its identifier.
func (r *SQLiteSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	db := getDB(ctx, r.dbConn)
	row := db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`,
		id.String(),
	)
	return scanSubscription(row)
}

// GetCurrentByUser returns the user's pending, active or grace subscription.
func (r *SQLiteSubscriptionRepository) GetCurrentByUser(ctx context.Context, userID int64) (*domain.Subscription, error) {
	db := getDB(ctx, r.dbConn)
	row := db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE user_id = ? AND status IN ('pending', 'active', 'grace')
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
	)
	return scanSubscription(row)
}

// ListDue returns subscriptions the clock has overtaken.
func (r *SQLiteSubscriptionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	db := getDB(ctx, r.dbConn)
	nowStr := now.UTC().Format(time.RFC3339Nano)
	rows, err := db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE (status = 'active' AND expires_at <= ?)
		    OR (status = 'grace' AND grace_until <= ?)
		 ORDER BY expires_at
		 LIMIT ?`,
		nowStr, nowStr, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

// ListExpiringBefore returns active subscriptions expiring before the cutoff.
func (r *SQLiteSubscriptionRepository) ListExpiringBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Subscription, error) {
	db := getDB(ctx, r.dbConn)
	rows, err := db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE status = 'active' AND expires_at <= ?
		 ORDER BY expires_at
		 LIMIT ?`,
		cutoff.UTC().Format(time.RFC3339Nano), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

// UpdateExpiriesBefore raises expiries earlier than the target to the target.
func (r *SQLiteSubscriptionRepository) UpdateExpiriesBefore(ctx context.Context, target time.Time) (int64, error) {
	db := getDB(ctx, r.dbConn)
	targetStr := target.UTC().Format(time.RFC3339Nano)
	result, err := db.ExecContext(ctx,
		`UPDATE subscriptions
		 SET expires_at = ?, updated_at = ?
		 WHERE status IN ('active', 'grace') AND expires_at < ?`,
		targetStr, time.Now().UTC().Format(time.RFC3339Nano), targetStr,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteAll removes every subscription.
func (r *SQLiteSubscriptionRepository) DeleteAll(ctx context.Context) (int64, error) {
	db := getDB(ctx, r.dbConn)
	result, err := db.ExecContext(ctx, `DELETE FROM subscriptions`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Count returns the number of subscriptions.
func (r *SQLiteSubscriptionRepository) Count(ctx context.Context) (int64, error) {
	db := getDB(ctx, r.dbConn)
	var n int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var (
		idStr        string
		userID       int64
		plan, status string
		startedAt    sql.NullString
		expiresAt    sql.NullString
		graceUntil   sql.NullString
		paymentID    sql.NullString
		createdAt    string
		updatedAt    string
	)
	err := row.Scan(&idStr, &userID, &plan, &status,
		&startedAt, &expiresAt, &graceUntil, &paymentID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	created, _ := time.Parse(time.RFC3339Nano, createdAt)
	updated, _ := time.Parse(time.RFC3339Nano, updatedAt)

	return domain.Rehydrate(
		id, userID, plan, domain.Status(status),
		nullToTime(startedAt), nullToTime(expiresAt), nullToTime(graceUntil),
		paymentID.String,
		created, updated,
	), nil
}

func scanSubscriptions(rows *sql.Rows) ([]*domain.Subscription, error) {
	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func timeToNull(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func nullToTime(v sql.NullString) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func strToNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ domain.SubscriptionRepository = (*SQLiteSubscriptionRepository)(nil)
