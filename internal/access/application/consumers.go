package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/akazakov/tollgate/internal/shared/infrastructure/eventbus"
	subDomain "github.com/akazakov/tollgate/internal/subscription/domain"
	"github.com/google/uuid"
)

// GrantConsumer issues invites when a payment grants access.
type GrantConsumer struct {
	granter *Granter
	logger  *slog.Logger
}

// NewGrantConsumer creates the grant consumer.
func NewGrantConsumer(granter *Granter, logger *slog.Logger) *GrantConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GrantConsumer{granter: granter, logger: logger}
}

// EventTypes returns the routing keys this consumer handles.
func (c *GrantConsumer) EventTypes() []string {
	return []string{subDomain.RoutingKeyAccessGrantRequested}
}

// Handle processes an access grant request.
func (c *GrantConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload struct {
		SubscriptionID uuid.UUID `json:"subscription_id"`
		UserID         int64     `json:"user_id"`
		PaymentID      string    `json:"payment_id"`
	}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		// A payload that never parses will never parse on redelivery either.
		c.logger.Error("discarding undecodable grant request",
			"event_id", event.EventID,
			"error", err,
		)
		return nil
	}
	if payload.UserID == 0 {
		c.logger.Error("discarding grant request without user", "event_id", event.EventID)
		return nil
	}

	if err := c.granter.Grant(ctx, payload.UserID, payload.SubscriptionID, payload.PaymentID); err != nil {
		return fmt.Errorf("failed to grant access: %w", err)
	}
	return nil
}

// RevokeConsumer removes members when access is withdrawn.
type RevokeConsumer struct {
	granter *Granter
	logger  *slog.Logger
}

// NewRevokeConsumer creates the revoke consumer.
func NewRevokeConsumer(granter *Granter, logger *slog.Logger) *RevokeConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RevokeConsumer{granter: granter, logger: logger}
}

// EventTypes returns the routing keys this consumer handles.
func (c *RevokeConsumer) EventTypes() []string {
	return []string{subDomain.RoutingKeyAccessRevokeRequested}
}

// Handle processes an access revocation request.
func (c *RevokeConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload struct {
		UserID int64  `json:"user_id"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		c.logger.Error("discarding undecodable revoke request",
			"event_id", event.EventID,
			"error", err,
		)
		return nil
	}
	if payload.UserID == 0 {
		c.logger.Error("discarding revoke request without user", "event_id", event.EventID)
		return nil
	}

	if err := c.granter.Revoke(ctx, payload.UserID, payload.Reason); err != nil {
		return fmt.Errorf("failed to revoke access: %w", err)
	}
	return nil
}

// ReminderConsumer nudges members whose subscription runs out soon.
type ReminderConsumer struct {
	granter *Granter
	logger  *slog.Logger
}

// NewReminderConsumer creates the reminder consumer.
func NewReminderConsumer(granter *Granter, logger *slog.Logger) *ReminderConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderConsumer{granter: granter, logger: logger}
}

// EventTypes returns the routing keys this consumer handles.
func (c *ReminderConsumer) EventTypes() []string {
	return []string{subDomain.RoutingKeySubscriptionExpiring}
}

// Handle delivers a renewal reminder.
func (c *ReminderConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload struct {
		UserID    int64     `json:"user_id"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		c.logger.Error("discarding undecodable reminder",
			"event_id", event.EventID,
			"error", err,
		)
		return nil
	}
	if payload.UserID == 0 {
		return nil
	}

	c.granter.RemindExpiring(ctx, payload.UserID, payload.ExpiresAt)
	return nil
}

var (
	_ eventbus.EventConsumer = (*GrantConsumer)(nil)
	_ eventbus.EventConsumer = (*RevokeConsumer)(nil)
	_ eventbus.EventConsumer = (*ReminderConsumer)(nil)
)
