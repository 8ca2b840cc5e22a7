package persistence

import (
	"context"
	"errors"

	"github.com/akazakov/tollgate/internal/admin/domain"
	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSettingsRepository implements domain.SettingsRepository on PostgreSQL.
type PostgresSettingsRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSettingsRepository creates a new PostgreSQL settings repository.
func NewPostgresSettingsRepository(pool *pgxpool.Pool) *PostgresSettingsRepository {
	return &PostgresSettingsRepository{pool: pool}
}

// Get returns the stored value for the key.
func (r *PostgresSettingsRepository) Get(ctx context.Context, key string) (string, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	var value string
	err := db.QueryRow(ctx,
		`SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrSettingNotFound
	}
	return value, err
}

// Set stores the value, replacing any previous one.
func (r *PostgresSettingsRepository) Set(ctx context.Context, key, value string) error {
	db := sharedPersistence.Executor(ctx, r.pool)
	_, err := db.Exec(ctx,
		`INSERT INTO settings (key, value, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value,
	)
	return err
}

// Delete removes the key. Deleting an absent key is not an error.
func (r *PostgresSettingsRepository) Delete(ctx context.Context, key string) error {
	db := sharedPersistence.Executor(ctx, r.pool)
	_, err := db.Exec(ctx, `DELETE FROM settings WHERE key = $1`, key)
	return err
}

var _ domain.SettingsRepository = (*PostgresSettingsRepository)(nil)
