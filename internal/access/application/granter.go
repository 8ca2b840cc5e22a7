// Package application coordinates channel access: issuing single-use invite
// credentials when a payment lands, approving join requests, and removing
// members whose subscription no longer grants access.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	accessDomain "github.com/akazakov/tollgate/internal/access/domain"
	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
	subDomain "github.com/akazakov/tollgate/internal/subscription/domain"
	"github.com/google/uuid"
)

// GranterConfig configures the access granter.
type GranterConfig struct {
	// InviteTTL bounds how long an unused invite link stays valid.
	InviteTTL time.Duration

	// GracePeriod mirrors the sweeper's grace period so join requests during
	// grace are still approved.
	GracePeriod time.Duration
}

// DefaultGranterConfig returns sensible defaults.
func DefaultGranterConfig() GranterConfig {
	return GranterConfig{
		InviteTTL:   24 * time.Hour,
		GracePeriod: 48 * time.Hour,
	}
}

// Granter owns the access lifecycle. The gateway call that mints an invite
// link runs before any local write, so a crash can leave an unused link on
// the platform but never a stored credential without one.
type Granter struct {
	uow       sharedPersistence.UnitOfWork
	creds     accessDomain.CredentialRepository
	approvals accessDomain.ApprovalRepository
	subs      subDomain.SubscriptionRepository
	gateway   accessDomain.ChannelGateway
	config    GranterConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewGranter creates an access granter.
func NewGranter(
	uow sharedPersistence.UnitOfWork,
	creds accessDomain.CredentialRepository,
	approvals accessDomain.ApprovalRepository,
	subs subDomain.SubscriptionRepository,
	gateway accessDomain.ChannelGateway,
	config GranterConfig,
	logger *slog.Logger,
) *Granter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Granter{
		uow:       uow,
		creds:     creds,
		approvals: approvals,
		subs:      subs,
		gateway:   gateway,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Grant issues an invite credential for the subscription and delivers it to
// the user. Re-delivery of the same grant resends the outstanding credential
// instead of minting a second one.
func (g *Granter) Grant(ctx context.Context, userID int64, subscriptionID uuid.UUID, paymentID string) error {
	now := g.now().UTC()

	existing, err := g.creds.GetIssuedBySubscription(ctx, subscriptionID)
	if err != nil && !errors.Is(err, accessDomain.ErrCredentialNotFound) {
		return fmt.Errorf("failed to load credential: %w", err)
	}
	if existing != nil && existing.Usable(now) {
		g.deliverInvite(ctx, userID, existing.InviteLink())
		g.logger.Info("invite re-delivered",
			"user_id", userID,
			"subscription_id", subscriptionID,
		)
		return nil
	}

	expiresAt := now.Add(g.config.InviteTTL)
	link, err := g.gateway.CreateInviteLink(ctx, fmt.Sprintf("sub-%d", userID), expiresAt)
	if err != nil {
		return fmt.Errorf("failed to create invite link: %w", err)
	}

	cred, err := accessDomain.NewCredential(link, userID, subscriptionID, paymentID, expiresAt)
	if err != nil {
		return err
	}

	err = sharedPersistence.Transact(ctx, g.uow, func(txCtx context.Context) error {
		// A link that timed out on the platform is dead weight; retire it so
		// the one-issued-per-subscription constraint admits the new one.
		if existing != nil {
			existing.MarkExpired(now)
			if err := g.creds.Update(txCtx, existing); err != nil {
				return err
			}
		}
		return g.creds.Save(txCtx, cred)
	})
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	g.deliverInvite(ctx, userID, link)
	g.logger.Info("invite issued",
		"user_id", userID,
		"subscription_id", subscriptionID,
		"payment_id", paymentID,
	)
	return nil
}

// Revoke removes the user from the channel and invalidates outstanding
// credentials. Safe to call when nothing was ever granted.
func (g *Granter) Revoke(ctx context.Context, userID int64, reason string) error {
	now := g.now().UTC()

	issued, err := g.creds.ListIssuedByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}
	for _, cred := range issued {
		if err := g.gateway.RevokeInviteLink(ctx, cred.InviteLink()); err != nil {
			// The platform may have already dropped the link; the local
			// record still must not admit anyone.
			g.logger.Warn("failed to revoke invite link",
				"user_id", userID,
				"error", err,
			)
		}
		cred.Revoke(now)
		if err := g.creds.Update(ctx, cred); err != nil {
			return fmt.Errorf("failed to update credential: %w", err)
		}
	}

	approved, err := g.approvals.IsApproved(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to check approval: %w", err)
	}
	if approved {
		if err := g.gateway.RemoveMember(ctx, userID); err != nil {
			return fmt.Errorf("failed to remove member: %w", err)
		}
		if err := g.approvals.Remove(ctx, userID); err != nil {
			return fmt.Errorf("failed to clear approval: %w", err)
		}
	}

	if text := revocationNotice(reason); text != "" {
		if err := g.gateway.SendMessage(ctx, userID, text); err != nil {
			g.logger.Debug("revocation notice undelivered", "user_id", userID, "error", err)
		}
	}

	g.logger.Info("access revoked",
		"user_id", userID,
		"reason", reason,
		"credentials_revoked", len(issued),
		"was_member", approved,
	)
	return nil
}

// HandleJoinRequest approves or declines a pending channel join request
// based on whether the user currently holds access.
func (g *Granter) HandleJoinRequest(ctx context.Context, userID int64) error {
	now := g.now().UTC()

	sub, err := g.subs.GetCurrentByUser(ctx, userID)
	if err != nil && !errors.Is(err, subDomain.ErrSubscriptionNotFound) {
		return fmt.Errorf("failed to load subscription: %w", err)
	}

	allowed := sub != nil
	if allowed {
		status := sub.EffectiveStatus(now, g.config.GracePeriod)
		allowed = status == subDomain.StatusActive || status == subDomain.StatusGrace
	}

	if !allowed {
		if err := g.gateway.DeclineJoinRequest(ctx, userID); err != nil {
			return fmt.Errorf("failed to decline join request: %w", err)
		}
		g.logger.Info("join request declined", "user_id", userID)
		return nil
	}

	if err := g.gateway.ApproveJoinRequest(ctx, userID); err != nil {
		return fmt.Errorf("failed to approve join request: %w", err)
	}
	if err := g.approvals.Record(ctx, userID, now); err != nil {
		return fmt.Errorf("failed to record approval: %w", err)
	}

	// The join request spends the credential that admitted the user.
	cred, err := g.creds.GetIssuedBySubscription(ctx, sub.ID())
	if err != nil && !errors.Is(err, accessDomain.ErrCredentialNotFound) {
		return fmt.Errorf("failed to load credential: %w", err)
	}
	if cred != nil {
		if err := cred.Consume(now); err == nil {
			if err := g.creds.Update(ctx, cred); err != nil {
				return fmt.Errorf("failed to update credential: %w", err)
			}
		}
	}

	g.logger.Info("join request approved", "user_id", userID)
	return nil
}

// RemindExpiring nudges the user to renew before access lapses.
func (g *Granter) RemindExpiring(ctx context.Context, userID int64, expiresAt time.Time) {
	text := fmt.Sprintf(
		"Your subscription expires on %s. Renew now to keep your access.",
		expiresAt.UTC().Format("2006-01-02 15:04 MST"),
	)
	if err := g.gateway.SendMessage(ctx, userID, text); err != nil {
		g.logger.Debug("expiry reminder undelivered", "user_id", userID, "error", err)
	}
}

func (g *Granter) deliverInvite(ctx context.Context, userID int64, link string) {
	text := fmt.Sprintf(
		"Payment received. Use this link to join the channel: %s\nThe link works once and only for you.",
		link,
	)
	if err := g.gateway.SendMessage(ctx, userID, text); err != nil {
		g.logger.Warn("invite message undelivered", "user_id", userID, "error", err)
	}
}

func revocationNotice(reason string) string {
	switch reason {
	case subDomain.RevokeReasonExpired:
		return "Your subscription has expired and channel access was removed. Renew any time to come back."
	case subDomain.RevokeReasonRefunded:
		return "Your payment was refunded and channel access was removed."
	default:
		return ""
	}
}
