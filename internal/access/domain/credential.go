// Package domain models channel access: single-use invite credentials and
// the approval roster of users allowed through join requests.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CredentialState is the lifecycle state of an invite credential.
type CredentialState string

// Credential states. A credential is minted as issued, becomes consumed when
// the member uses it, and is revoked or expired when access is withdrawn
// before use.
const (
	StateIssued   CredentialState = "issued"
	StateConsumed CredentialState = "consumed"
	StateRevoked  CredentialState = "revoked"
	StateExpired  CredentialState = "expired"
)

// Credential is a single-use invite link bound to one subscription period.
// The link itself is the identity; the messaging platform guarantees its
// uniqueness.
type Credential struct {
	inviteLink     string
	userID         int64
	subscriptionID uuid.UUID
	paymentID      string
	state          CredentialState
	expiresAt      time.Time
	createdAt      time.Time
	updatedAt      time.Time
}

// NewCredential mints an issued credential for the given invite link.
func NewCredential(inviteLink string, userID int64, subscriptionID uuid.UUID, paymentID string, expiresAt time.Time) (*Credential, error) {
	if strings.TrimSpace(inviteLink) == "" {
		return nil, ErrInvalidCredential
	}
	if userID <= 0 {
		return nil, ErrInvalidCredential
	}
	now := time.Now().UTC()
	return &Credential{
		inviteLink:     inviteLink,
		userID:         userID,
		subscriptionID: subscriptionID,
		paymentID:      paymentID,
		state:          StateIssued,
		expiresAt:      expiresAt,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// RehydrateCredential reconstructs a credential from storage.
func RehydrateCredential(
	inviteLink string,
	userID int64,
	subscriptionID uuid.UUID,
	paymentID string,
	state CredentialState,
	expiresAt, createdAt, updatedAt time.Time,
) *Credential {
	return &Credential{
		inviteLink:     inviteLink,
		userID:         userID,
		subscriptionID: subscriptionID,
		paymentID:      paymentID,
		state:          state,
		expiresAt:      expiresAt,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

// InviteLink returns the invite URL.
func (c *Credential) InviteLink() string { return c.inviteLink }

// UserID returns the holder's Telegram ID.
func (c *Credential) UserID() int64 { return c.userID }

// SubscriptionID returns the subscription the credential belongs to.
func (c *Credential) SubscriptionID() uuid.UUID { return c.subscriptionID }

// PaymentID returns the payment that triggered the grant, if any.
func (c *Credential) PaymentID() string { return c.paymentID }

// State returns the lifecycle state.
func (c *Credential) State() CredentialState { return c.state }

// ExpiresAt returns when the unused link stops working.
func (c *Credential) ExpiresAt() time.Time { return c.expiresAt }

// CreatedAt returns the issue time.
func (c *Credential) CreatedAt() time.Time { return c.createdAt }

// UpdatedAt returns the last modification time.
func (c *Credential) UpdatedAt() time.Time { return c.updatedAt }

// Usable reports whether the credential can still admit its holder.
func (c *Credential) Usable(now time.Time) bool {
	if c.state != StateIssued {
		return false
	}
	return c.expiresAt.IsZero() || c.expiresAt.After(now)
}

// Consume marks the credential as used. Only an issued credential can be
// consumed; a spent one admits nobody twice.
func (c *Credential) Consume(now time.Time) error {
	if c.state != StateIssued {
		return ErrCredentialSpent
	}
	c.state = StateConsumed
	c.updatedAt = now.UTC()
	return nil
}

// Revoke invalidates the credential. Revoking an already spent credential is
// a no-op so revocation can always run to completion.
func (c *Credential) Revoke(now time.Time) {
	if c.state == StateRevoked || c.state == StateExpired {
		return
	}
	c.state = StateRevoked
	c.updatedAt = now.UTC()
}

// MarkExpired records that the unused link timed out on the platform side.
func (c *Credential) MarkExpired(now time.Time) {
	if c.state != StateIssued {
		return
	}
	c.state = StateExpired
	c.updatedAt = now.UTC()
}
