package persistence

import (
	"context"
	"errors"

	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
	"github.com/akazakov/tollgate/internal/subscription/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresUserRepository implements domain.UserRepository on PostgreSQL.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresUserRepository creates a new PostgreSQL user repository.
func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Save stores a new user.
func (r *PostgresUserRepository) Save(ctx context.Context, user *domain.User) error {
	db := sharedPersistence.Executor(ctx, r.pool)
	_, err := db.Exec(ctx,
		`INSERT INTO users (telegram_id, username, email, created_at)
		 VALUES ($1, $2, $3, $4)`,
		user.TelegramID, strToPtr(user.Username), strToPtr(user.Email), user.CreatedAt.UTC(),
	)
	return err
}

// GetByID loads a user by Telegram ID.
func (r *PostgresUserRepository) GetByID(ctx context.Context, telegramID int64) (*domain.User, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	var (
		user     domain.User
		username *string
		email    *string
	)
	err := db.QueryRow(ctx,
		`SELECT telegram_id, username, email, created_at FROM users WHERE telegram_id = $1`,
		telegramID,
	).Scan(&user.TelegramID, &username, &email, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	user.Username = ptrToStr(username)
	user.Email = ptrToStr(email)
	return &user, nil
}

// EnsureExists creates the user if unseen.
func (r *PostgresUserRepository) EnsureExists(ctx context.Context, user *domain.User) error {
	db := sharedPersistence.Executor(ctx, r.pool)
	_, err := db.Exec(ctx,
		`INSERT INTO users (telegram_id, username, email, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (telegram_id) DO NOTHING`,
		user.TelegramID, strToPtr(user.Username), strToPtr(user.Email), user.CreatedAt.UTC(),
	)
	return err
}

// DeleteAll removes every user.
func (r *PostgresUserRepository) DeleteAll(ctx context.Context) (int64, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	tag, err := db.Exec(ctx, `DELETE FROM users`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of users.
func (r *PostgresUserRepository) Count(ctx context.Context) (int64, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	var n int64
	err := db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

var _ domain.UserRepository = (*PostgresUserRepository)(nil)
