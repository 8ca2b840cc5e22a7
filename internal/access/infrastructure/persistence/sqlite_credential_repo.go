// Package persistence provides SQLite and PostgreSQL repositories for the
// access module.
package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/akazakov/tollgate/internal/access/domain"
	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteCredentialRepository implements domain.CredentialRepository on SQLite.
type SQLiteCredentialRepository struct {
	dbConn *sql.DB
}

// NewSQLiteCredentialRepository creates a new SQLite credential repository.
func NewSQLiteCredentialRepository(dbConn *sql.DB) *SQLiteCredentialRepository {
	return &SQLiteCredentialRepository{dbConn: dbConn}
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

const credentialColumns = `invite_link, telegram_user_id, subscription_id, payment_id, state, expires_at, created_at, updated_at`

// Save stores a new credential.
func (r *SQLiteCredentialRepository) Save(ctx context.Context, cred *domain.Credential) error {
	db := getDB(ctx, r.dbConn)
	_, err := db.ExecContext(ctx,
		`INSERT INTO invite_links (`+credentialColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cred.InviteLink(),
		cred.UserID(),
		cred.SubscriptionID().String(),
		strToNull(cred.PaymentID()),
		string(cred.State()),
		timeToNull(cred.ExpiresAt()),
		cred.CreatedAt().UTC().Format(time.RFC3339Nano),
		cred.UpdatedAt().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Update persists changes to an existing credential.
func (r *SQLiteCredentialRepository) Update(ctx context.Context, cred *domain.Credential) error {
	db := getDB(ctx, r.dbConn)
	result, err := db.ExecContext(ctx,
		`UPDATE invite_links
		 SET state = ?, expires_at = ?, updated_at = ?
		 WHERE invite_link = ?`,
		string(cred.State()),
		timeToNull(cred.ExpiresAt()),
		cred.UpdatedAt().UTC().Format(time.RFC3339Nano),
		cred.InviteLink(),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}

// GetByLink loads a credential by its invite link.
func (r *SQLiteCredentialRepository) GetByLink(ctx context.Context, inviteLink string) (*domain.Credential, error) {
	db := getDB(ctx, r.dbConn)
	row := db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM invite_links WHERE invite_link = ?`,
		inviteLink,
	)
	return scanCredential(row)
}

// GetIssuedBySubscription returns the subscription's outstanding credential.
func (r *SQLiteCredentialRepository) GetIssuedBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*domain.Credential, error) {
	db := getDB(ctx, r.dbConn)
	row := db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM invite_links
		 WHERE subscription_id = ? AND state = 'issued'`,
		subscriptionID.String(),
	)
	return scanCredential(row)
}

// ListIssuedByUser returns the user's outstanding credentials, newest first.
func (r *SQLiteCredentialRepository) ListIssuedByUser(ctx context.Context, userID int64) ([]*domain.Credential, error) {
	db := getDB(ctx, r.dbConn)
	rows, err := db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM invite_links
		 WHERE telegram_user_id = ? AND state = 'issued'
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*domain.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// DeleteAll removes every credential.
func (r *SQLiteCredentialRepository) DeleteAll(ctx context.Context) (int64, error) {
	db := getDB(ctx, r.dbConn)
	result, err := db.ExecContext(ctx, `DELETE FROM invite_links`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Count returns the number of credentials.
func (r *SQLiteCredentialRepository) Count(ctx context.Context) (int64, error) {
	db := getDB(ctx, r.dbConn)
	var n int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invite_links`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*domain.Credential, error) {
	var (
		inviteLink string
		userID     int64
		subIDStr   string
		paymentID  sql.NullString
		state      string
		expiresAt  sql.NullString
		createdAt  string
		updatedAt  string
	)
	err := row.Scan(&inviteLink, &userID, &subIDStr, &paymentID, &state,
		&expiresAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}

	subID, err := uuid.Parse(subIDStr)
	if err != nil {
		return nil, err
	}
	created, _ := time.Parse(time.RFC3339Nano, createdAt)
	updated, _ := time.Parse(time.RFC3339Nano, updatedAt)

	return domain.RehydrateCredential(
		inviteLink, userID, subID, paymentID.String,
		domain.CredentialState(state),
		nullToTime(expiresAt), created, updated,
	), nil
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

var _ domain.CredentialRepository = (*SQLiteCredentialRepository)(nil)
