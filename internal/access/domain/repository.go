package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CredentialRepository persists invite credentials.
type CredentialRepository interface {
	Save(ctx context.Context, cred *Credential) error
	Update(ctx context.Context, cred *Credential) error
	GetByLink(ctx context.Context, inviteLink string) (*Credential, error)

	// GetIssuedBySubscription returns the subscription's outstanding issued
	// credential, or ErrCredentialNotFound.
	GetIssuedBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*Credential, error)

	// ListIssuedByUser returns all of the user's outstanding issued
	// credentials, newest first.
	ListIssuedByUser(ctx context.Context, userID int64) ([]*Credential, error)

	DeleteAll(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// ApprovalRepository tracks which users were let into the channel.
type ApprovalRepository interface {
	// Record stores the approval, overwriting any earlier timestamp.
	Record(ctx context.Context, userID int64, at time.Time) error
	IsApproved(ctx context.Context, userID int64) (bool, error)
	Remove(ctx context.Context, userID int64) error
	DeleteAll(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
}
