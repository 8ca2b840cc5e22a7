package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/akazakov/tollgate/internal/subscription/domain"
)

// SQLitePaymentRepository implements domain.PaymentRepository on SQLite.
type SQLitePaymentRepository struct {
	dbConn *sql.DB
}

// NewSQLitePaymentRepository creates a new SQLite payment repository.
func NewSQLitePaymentRepository(dbConn *sql.DB) *SQLitePaymentRepository {
	return &SQLitePaymentRepository{dbConn: dbConn}
}

const paymentColumns = `payment_id, user_id, amount, currency, status, confirmation_url, created_at, updated_at`

// Save stores a new payment record.
func (r *SQLitePaymentRepository) Save(ctx context.Context, payment *domain.Payment) error {
	db := getDB(ctx, r.dbConn)
	_, err := db.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.PaymentID,
		payment.UserID,
		payment.Amount,
		payment.Currency,
		string(payment.Status),
		strToNull(payment.ConfirmationURL),
		payment.CreatedAt.UTC().Format(time.RFC3339Nano),
		payment.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Update persists changes to an existing payment.
func (r *SQLitePaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	db := getDB(ctx, r.dbConn)
	result, err := db.ExecContext(ctx,
		`UPDATE payments
		 SET status = ?, confirmation_url = ?, updated_at = ?
		 WHERE payment_id = ?`,
		string(payment.Status),
		strToNull(payment.ConfirmationURL),
		payment.UpdatedAt.UTC().Format(time.RFC3339Nano),
		payment.PaymentID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

// GetByID loads a payment by processor ID.
func (r *SQLitePaymentRepository) GetByID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	db := getDB(ctx, r.dbConn)
	row := db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE payment_id = ?`,
		paymentID,
	)
	return scanPayment(row)
}

// LatestPendingByUser returns the user's newest pending payment after since.
func (r *SQLitePaymentRepository) LatestPendingByUser(ctx context.Context, userID int64, since time.Time) (*domain.Payment, error) {
	db := getDB(ctx, r.dbConn)
	row := db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE user_id = ? AND status = 'pending' AND created_at >= ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID, since.UTC().Format(time.RFC3339Nano),
	)
	return scanPayment(row)
}

// DeleteAll removes every payment record.
func (r *SQLitePaymentRepository) DeleteAll(ctx context.Context) (int64, error) {
	db := getDB(ctx, r.dbConn)
	result, err := db.ExecContext(ctx, `DELETE FROM payments`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Count returns the number of payment records.
func (r *SQLitePaymentRepository) Count(ctx context.Context) (int64, error) {
	db := getDB(ctx, r.dbConn)
	var n int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments`).Scan(&n)
	return n, err
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var (
		payment         domain.Payment
		status          string
		confirmationURL sql.NullString
		createdAt       string
		updatedAt       string
	)
	err := row.Scan(
		&payment.PaymentID, &payment.UserID, &payment.Amount, &payment.Currency,
		&status, &confirmationURL, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	payment.Status = domain.PaymentStatus(status)
	payment.ConfirmationURL = confirmationURL.String
	payment.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	payment.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &payment, nil
}

var _ domain.PaymentRepository = (*SQLitePaymentRepository)(nil)
