package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/akazakov/tollgate/internal/subscription/domain"
)

// SQLiteUserRepository implements domain.UserRepository on SQLite.
type SQLiteUserRepository struct {
	dbConn *sql.DB
}

// NewSQLiteUserRepository creates a new SQLite user repository.
func NewSQLiteUserRepository(dbConn *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{dbConn: dbConn}
}

// Save stores a new user.
func (r *SQLiteUserRepository) Save(ctx context.Context, user *domain.User) error {
	db := getDB(ctx, r.dbConn)
	_, err := db.ExecContext(ctx,
		`INSERT INTO users (telegram_id, username, email, created_at)
		 VALUES (?, ?, ?, ?)`,
		user.TelegramID,
		strToNull(user.Username),
		strToNull(user.Email),
		user.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetByID loads a user by Telegram ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, telegramID int64) (*domain.User, error) {
	db := getDB(ctx, r.dbConn)
	var (
		user      domain.User
		username  sql.NullString
		email     sql.NullString
		createdAt string
	)
	err := db.QueryRowContext(ctx,
		`SELECT telegram_id, username, email, created_at FROM users WHERE telegram_id = ?`,
		telegramID,
	).Scan(&user.TelegramID, &username, &email, &createdAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	user.Username = username.String
	user.Email = email.String
	user.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &user, nil
}

// EnsureExists creates the user if unseen.
func (r *SQLiteUserRepository) EnsureExists(ctx context.Context, user *domain.User) error {
	db := getDB(ctx, r.dbConn)
	_, err := db.ExecContext(ctx,
		`INSERT INTO users (telegram_id, username, email, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(telegram_id) DO NOTHING`,
		user.TelegramID,
		strToNull(user.Username),
		strToNull(user.Email),
		user.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// DeleteAll removes every user.
func (r *SQLiteUserRepository) DeleteAll(ctx context.Context) (int64, error) {
	db := getDB(ctx, r.dbConn)
	result, err := db.ExecContext(ctx, `DELETE FROM users`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Count returns the number of users.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int64, error) {
	db := getDB(ctx, r.dbConn)
	var n int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

var _ domain.UserRepository = (*SQLiteUserRepository)(nil)
