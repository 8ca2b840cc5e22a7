package domain

import (
	"context"
	"time"
)

// ChannelGateway is the messaging platform operations the access layer
// needs. Implementations talk to the Telegram Bot API; tests substitute a
// fake.
type ChannelGateway interface {
	// CreateInviteLink mints a single-use join-request invite link that
	// stops working at expiresAt.
	CreateInviteLink(ctx context.Context, name string, expiresAt time.Time) (string, error)

	// RevokeInviteLink invalidates an unused invite link.
	RevokeInviteLink(ctx context.Context, inviteLink string) error

	// ApproveJoinRequest lets a pending join request through.
	ApproveJoinRequest(ctx context.Context, userID int64) error

	// DeclineJoinRequest rejects a pending join request.
	DeclineJoinRequest(ctx context.Context, userID int64) error

	// RemoveMember kicks the user from the channel without a permanent ban,
	// so a future renewal can re-admit them.
	RemoveMember(ctx context.Context, userID int64) error

	// SendMessage delivers a direct message to the user. Failures are
	// expected (blocked bot, never started a chat) and non-fatal.
	SendMessage(ctx context.Context, userID int64, text string) error
}
