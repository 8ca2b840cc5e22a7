package ledger

import (
	"context"
	"database/sql"
	"time"

	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
)

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	dbConn *sql.DB
}

// NewSQLiteRepository creates a new SQLite ledger repository.
func NewSQLiteRepository(dbConn *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{dbConn: dbConn}
}

type sqliteQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// getDB returns the transaction from context when present, otherwise the connection.
func (r *SQLiteRepository) getDB(ctx context.Context) sqliteQuerier {
	if info, ok := sharedPersistence.SQLiteTxInfoFromContext(ctx); ok {
		return info.Tx
	}
	return r.dbConn
}

// RecordIfNew inserts the event if unseen. ON CONFLICT DO NOTHING makes the
// insert race-safe: of two concurrent deliveries only one observes new=true.
func (r *SQLiteRepository) RecordIfNew(ctx context.Context, eventID, eventType string) (bool, *Record, error) {
	db := r.getDB(ctx)
	result, err := db.ExecContext(ctx,
		`INSERT INTO processed_payments (event_id, event_type, outcome, processed_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(event_id) DO NOTHING`,
		eventID, eventType, OutcomeApplied, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, nil, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, nil, err
	}
	if affected > 0 {
		return true, nil, nil
	}

	prior, err := r.Get(ctx, eventID)
	if err != nil {
		return false, nil, err
	}
	return false, prior, nil
}

// SetOutcome updates the outcome of an existing record.
func (r *SQLiteRepository) SetOutcome(ctx context.Context, eventID, outcome string) error {
	db := r.getDB(ctx)
	_, err := db.ExecContext(ctx,
		`UPDATE processed_payments SET outcome = ? WHERE event_id = ?`,
		outcome, eventID,
	)
	return err
}

// Get returns the record for an event ID, or nil if none exists.
func (r *SQLiteRepository) Get(ctx context.Context, eventID string) (*Record, error) {
	db := r.getDB(ctx)
	var (
		rec          Record
		processedStr string
	)
	err := db.QueryRowContext(ctx,
		`SELECT event_id, event_type, outcome, processed_at
		 FROM processed_payments WHERE event_id = ?`,
		eventID,
	).Scan(&rec.EventID, &rec.EventType, &rec.Outcome, &processedStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.ProcessedAt, _ = time.Parse(time.RFC3339Nano, processedStr)
	return &rec, nil
}

// DeleteAll removes all records.
func (r *SQLiteRepository) DeleteAll(ctx context.Context) (int64, error) {
	db := r.getDB(ctx)
	result, err := db.ExecContext(ctx, `DELETE FROM processed_payments`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

var _ Repository = (*SQLiteRepository)(nil)
