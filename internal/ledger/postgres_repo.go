package ledger

import (
	"context"
	"errors"
	"time"

	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL ledger repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// RecordIfNew inserts the event if unseen.
func (r *PostgresRepository) RecordIfNew(ctx context.Context, eventID, eventType string) (bool, *Record, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	tag, err := db.Exec(ctx,
		`INSERT INTO processed_payments (event_id, event_type, outcome, processed_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType, OutcomeApplied,
	)
	if err != nil {
		return false, nil, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil, nil
	}

	prior, err := r.Get(ctx, eventID)
	if err != nil {
		return false, nil, err
	}
	return false, prior, nil
}

// SetOutcome updates the outcome of an existing record.
func (r *PostgresRepository) SetOutcome(ctx context.Context, eventID, outcome string) error {
	db := sharedPersistence.Executor(ctx, r.pool)
	_, err := db.Exec(ctx,
		`UPDATE processed_payments SET outcome = $2 WHERE event_id = $1`,
		eventID, outcome,
	)
	return err
}

// Get returns the record for an event ID, or nil if none exists.
func (r *PostgresRepository) Get(ctx context.Context, eventID string) (*Record, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	var (
		rec         Record
		processedAt time.Time
	)
	err := db.QueryRow(ctx,
		`SELECT event_id, event_type, outcome, processed_at
		 FROM processed_payments WHERE event_id = $1`,
		eventID,
	).Scan(&rec.EventID, &rec.EventType, &rec.Outcome, &processedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.ProcessedAt = processedAt
	return &rec, nil
}

// DeleteAll removes all records.
func (r *PostgresRepository) DeleteAll(ctx context.Context) (int64, error) {
	db := sharedPersistence.Executor(ctx, r.pool)
	tag, err := db.Exec(ctx, `DELETE FROM processed_payments`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PostgresRepository)(nil)
