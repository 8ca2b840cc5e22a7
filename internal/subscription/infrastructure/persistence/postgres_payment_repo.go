package persistence

import (
	"context"
	"errors"
	"time"

	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
	"github.com/akazakov/tollgate/internal/subscription/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPaymentRepository implements domain.PaymentRepository on PostgreSQL.
type PostgresPaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresPaymentRepository creates a new PostgreSQL payment repository.
func NewPostgresPaymentRepository(pool *pgxpool.Pool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{pool: pool}
}

// Save stores a new payment record.
func (r *PostgresPaymentRepository) Save(ctx context.Context, payment *domain.Payment) error {
	db := sharedPersistence.Executor(ctx, r.pool)
	_, err := db.Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		payment.PaymentID,
		payment.UserID,
		payment.Amount,
		payment.Currency,
		string(payment.Status),
		strToPtr(payment.ConfirmationURL),
		payment.CreatedAt.UTC(),
		payment.UpdatedAt.UTC(),
	)
	return err
}

// Update persists changes to an existing payment.
func (r *PostgresPaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	db := sharedPersistence.Executor(ctx, r.pool)
	tag, err := db.Exec(ctx,
		`UPDATE payments
		 SET status = $2, confirmation_url = $3, updated_at = $4
		 WHERE payment_id = $1`,
		payment.PaymentID,
		string(payment.Status),
		strToPtr(payment.ConfirmationURL),
		payment.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

// GetByID loads a payment by processor ID.
func (r *PostgresPaymentRepository) GetByID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	row := db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE payment_id = $1`,
		paymentID,
	)
	return scanPostgresPayment(row)
}

// LatestPendingByUser returns the user's newest pending payment after since.
func (r *PostgresPaymentRepository) LatestPendingByUser(ctx context.Context, userID int64, since time.Time) (*domain.Payment, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	row := db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE user_id = $1 AND status = 'pending' AND created_at >= $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID, since.UTC(),
	)
	return scanPostgresPayment(row)
}

// DeleteAll removes every payment record.
func (r *PostgresPaymentRepository) DeleteAll(ctx context.Context) (int64, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	tag, err := db.Exec(ctx, `DELETE FROM payments`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of payment records.
func (r *PostgresPaymentRepository) Count(ctx context.Context) (int64, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	var n int64
	err := db.QueryRow(ctx, `SELECT COUNT(*) FROM payments`).Scan(&n)
	return n, err
}

func scanPostgresPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		payment         domain.Payment
		status          string
		confirmationURL *string
	)
	err := row.Scan(
		&payment.PaymentID, &payment.UserID, &payment.Amount, &payment.Currency,
		&status, &confirmationURL, &payment.CreatedAt, &payment.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	payment.Status = domain.PaymentStatus(status)
	payment.ConfirmationURL = ptrToStr(confirmationURL)
	return &payment, nil
}

var _ domain.PaymentRepository = (*PostgresPaymentRepository)(nil)
