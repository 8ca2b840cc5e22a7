// Package ledger records which payment events have already been processed,
// keyed by event ID. The record is written in the same transaction as the
// state change it guards, so an event is either fully applied and recorded
// or neither.
package ledger

import (
	"context"
	"time"
)

// Outcome values recorded for processed events.
const (
	OutcomeApplied  = "applied"
	OutcomeIgnored  = "ignored"
	OutcomeRejected = "rejected"
)

// Record is a processed-event entry.
type Record struct {
	EventID     string
	EventType   string
	Outcome     string
	ProcessedAt time.Time
}

// Repository stores processed-event records.
type Repository interface {
	// RecordIfNew inserts a record for the event if none exists. It returns
	// true when the event is new, or false with the prior record when it was
	// already processed. The insert participates in the caller's transaction.
	RecordIfNew(ctx context.Context, eventID, eventType string) (bool, *Record, error)

	// SetOutcome updates the outcome of an existing record.
	SetOutcome(ctx context.Context, eventID, outcome string) error

	// Get returns the record for an event ID, or nil if none exists.
	Get(ctx context.Context, eventID string) (*Record, error)

	// DeleteAll removes all records. Used by admin purge.
	DeleteAll(ctx context.Context) (int64, error)
}
