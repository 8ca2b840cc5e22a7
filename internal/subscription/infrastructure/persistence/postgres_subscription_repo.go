package persistence

import (
	"context"
	"errors"
	"time"

	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
	"github.com/akazakov/tollgate/internal/subscription/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSubscriptionRepository implements domain.SubscriptionRepository on PostgreSQL.
type PostgresSubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSubscriptionRepository creates a new PostgreSQL subscription repository.
func NewPostgresSubscriptionRepository(pool *pgxpool.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

// Save stores a new subscription.
func (r *PostgresSubscriptionRepository) Save(ctx context.Context, sub *domain.Subscription) error {
	db := sharedPersistence.Executor(ctx, r.pool)
	_, err := db.Exec(ctx,
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sub.ID(),
		sub.UserID(),
		sub.Plan(),
		string(sub.Status()),
		timeToPtr(sub.StartedAt()),
		timeToPtr(sub.ExpiresAt()),
		timeToPtr(sub.GraceUntil()),
		strToPtr(sub.SourcePaymentID()),
		sub.CreatedAt().UTC(),
		sub.UpdatedAt().UTC(),
	)
	return err
}

// Update persists changes to an existing subscription.
func (r *PostgresSubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	db := sharedPersistence.Executor(ctx, r.pool)
	tag, err := db.Exec(ctx,
		`UPDATE subscriptions
		 SET plan = $2, status = $3, started_at = $4, expires_at = $5,
		     grace_until = $6, source_payment_id = $7, updated_at = $8
		 WHERE id = $1`,
		sub.ID(),
		sub.Plan(),
		string(sub.Status()),
		timeToPtr(sub.StartedAt()),
		timeToPtr(sub.ExpiresAt()),
		timeToPtr(sub.GraceUntil()),
		strToPtr(sub.SourcePaymentID()),
		sub.UpdatedAt().UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// GetByID loads a subscription by its identifier.
func (r *PostgresSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	row := db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	return scanPostgresSubscription(row)
}

// GetCurrentByUser returns the user's pending, active or grace subscription.
func (r *PostgresSubscriptionRepository) GetCurrentByUser(ctx context.Context, userID int64) (*domain.Subscription, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	row := db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE user_id = $1 AND status IN ('pending', 'active', 'grace')
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
	)
	return scanPostgresSubscription(row)
}

// ListDue returns subscriptions the clock has overtaken.
func (r *PostgresSubscriptionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	rows, err := db.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE (status = 'active' AND expires_at <= $1)
		    OR (status = 'grace' AND grace_until <= $1)
		 ORDER BY expires_at
		 LIMIT $2`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPostgresSubscriptions(rows)
}

// ListExpiringBefore returns active subscriptions expiring before the cutoff.
func (r *PostgresSubscriptionRepository) ListExpiringBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Subscription, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	rows, err := db.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE status = 'active' AND expires_at <= $1
		 ORDER BY expires_at
		 LIMIT $2`,
		cutoff.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPostgresSubscriptions(rows)
}

// UpdateExpiriesBefore raises expiries earlier than the target to the target.
func (r *PostgresSubscriptionRepository) UpdateExpiriesBefore(ctx context.Context, target time.Time) (int64, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	tag, err := db.Exec(ctx,
		`UPDATE subscriptions
		 SET expires_at = $1, updated_at = NOW()
		 WHERE status IN ('active', 'grace') AND expires_at < $1`,
		target.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteAll removes every subscription.
func (r *PostgresSubscriptionRepository) DeleteAll(ctx context.Context) (int64, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	tag, err := db.Exec(ctx, `DELETE FROM subscriptions`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of subscriptions.
func (r *PostgresSubscriptionRepository) Count(ctx context.Context) (int64, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	var n int64
	err := db.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions`).Scan(&n)
	return n, err
}

func scanPostgresSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		id           uuid.UUID
		userID       int64
		plan, status string
		startedAt    *time.Time
		expiresAt    *time.Time
		graceUntil   *time.Time
		paymentID    *string
		createdAt    time.Time
		updatedAt    time.Time
	)
	err := row.Scan(&id, &userID, &plan, &status,
		&startedAt, &expiresAt, &graceUntil, &paymentID, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}

	return domain.Rehydrate(
		id, userID, plan, domain.Status(status),
		ptrToTime(startedAt), ptrToTime(expiresAt), ptrToTime(graceUntil),
		ptrToStr(paymentID),
		createdAt, updatedAt,
	), nil
}

func scanPostgresSubscriptions(rows pgx.Rows) ([]*domain.Subscription, error) {
	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanPostgresSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func timeToPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func ptrToTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func strToPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ptrToStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ domain.SubscriptionRepository = (*PostgresSubscriptionRepository)(nil)
