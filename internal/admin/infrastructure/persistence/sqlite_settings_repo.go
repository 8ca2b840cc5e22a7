// Package persistence provides SQLite and PostgreSQL settings repositories
// for the admin module.
package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/akazakov/tollgate/internal/admin/domain"
	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
)

// SQLiteSettingsRepository implements domain.SettingsRepository on SQLite.
type SQLiteSettingsRepository struct {
	dbConn *sql.DB
}

// NewSQLiteSettingsRepository creates a new SQLite settings repository.
func NewSQLiteSettingsRepository(dbConn *sql.DB) *SQLiteSettingsRepository {
	return &SQLiteSettingsRepository{dbConn: dbConn}
}

type sqliteQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDB(ctx context.Context, fallback *sql.DB) sqliteQuerier {
	if info, ok := sharedPersistence.SQLiteTxInfoFromContext(ctx); ok {
		return info.Tx
	}
	return fallback
}

// Get returns the stored value for the key.
func (r *SQLiteSettingsRepository) Get(ctx context.Context, key string) (string, error) {
	db := getDB(ctx, r.dbConn)
	var value string
	err := db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", domain.ErrSettingNotFound
	}
	return value, err
}

// Set stores the value, replacing any previous one.
func (r *SQLiteSettingsRepository) Set(ctx context.Context, key, value string) error {
	db := getDB(ctx, r.dbConn)
	_, err := db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Delete removes the key. Deleting an absent key is not an error.
func (r *SQLiteSettingsRepository) Delete(ctx context.Context, key string) error {
	db := getDB(ctx, r.dbConn)
	_, err := db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	return err
}

var _ domain.SettingsRepository = (*SQLiteSettingsRepository)(nil)
