package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/akazakov/tollgate/internal/access/domain"
	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCredentialRepository implements domain.CredentialRepository on PostgreSQL.
type PostgresCredentialRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCredentialRepository creates a new PostgreSQL credential repository.
func NewPostgresCredentialRepository(pool *pgxpool.Pool) *PostgresCredentialRepository {
	return &PostgresCredentialRepository{pool: pool}
}

// Save stores a new credential.
func (r *PostgresCredentialRepository) Save(ctx context.Context, cred *domain.Credential) error {
	db := sharedPersistence.Executor(ctx, r.pool)
	_, err := db.Exec(ctx,
		`INSERT INTO invite_links (`+credentialColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cred.InviteLink(),
		cred.UserID(),
		cred.SubscriptionID(),
		strToPtr(cred.PaymentID()),
		string(cred.State()),
		timeToPtr(cred.ExpiresAt()),
		cred.CreatedAt().UTC(),
		cred.UpdatedAt().UTC(),
	)
	return err
}

// Update persists changes to an existing credential.
func (r *PostgresCredentialRepository) Update(ctx context.Context, cred *domain.Credential) error {
	db := sharedPersistence.Executor(ctx, r.pool)
	tag, err := db.Exec(ctx,
		`UPDATE invite_links
		 SET state = $2, expires_at = $3, updated_at = $4
		 WHERE invite_link = $1`,
		cred.InviteLink(),
		string(cred.State()),
		timeToPtr(cred.ExpiresAt()),
		cred.UpdatedAt().UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}

// GetByLink loads a credential by its invite link.
func (r *PostgresCredentialRepository) GetByLink(ctx context.Context, inviteLink string) (*domain.Credential, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	row := db.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM invite_links WHERE invite_link = $1`,
		inviteLink,
	)
	return scanPostgresCredential(row)
}

// GetIssuedBySubscription returns the subscription's outstanding credential.
func (r *PostgresCredentialRepository) GetIssuedBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*domain.Credential, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	row := db.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM invite_links
		 WHERE subscription_id = $1 AND state = 'issued'`,
		subscriptionID,
	)
	return scanPostgresCredential(row)
}

// ListIssuedByUser returns the user's outstanding credentials, newest first.
func (r *PostgresCredentialRepository) ListIssuedByUser(ctx context.Context, userID int64) ([]*domain.Credential, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	rows, err := db.Query(ctx,
		`SELECT `+credentialColumns+` FROM invite_links
		 WHERE telegram_user_id = $1 AND state = 'issued'
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*domain.Credential
	for rows.Next() {
		cred, err := scanPostgresCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// DeleteAll removes every credential.
func (r *PostgresCredentialRepository) DeleteAll(ctx context.Context) (int64, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	tag, err := db.Exec(ctx, `DELETE FROM invite_links`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of credentials.
func (r *PostgresCredentialRepository) Count(ctx context.Context) (int64, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	var n int64
	err := db.QueryRow(ctx, `SELECT COUNT(*) FROM invite_links`).Scan(&n)
	return n, err
}

func scanPostgresCredential(row pgx.Row) (*domain.Credential, error) {
	var (
		inviteLink string
		userID     int64
		subID      uuid.UUID
		paymentID  *string
		state      string
		expiresAt  *time.Time
		createdAt  time.Time
		updatedAt  time.Time
	)
	err := row.Scan(&inviteLink, &userID, &subID, &paymentID, &state,
		&expiresAt, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}

	return domain.RehydrateCredential(
		inviteLink, userID, subID, ptrToStr(paymentID),
		domain.CredentialState(state),
		ptrToTime(expiresAt), createdAt, updatedAt,
	), nil
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

var _ domain.CredentialRepository = (*PostgresCredentialRepository)(nil)
