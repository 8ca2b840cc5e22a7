// Package application orchestrates payment events into subscription state
// changes. Handlers run inside the caller's transaction; side effects leave
// through the outbox so they commit atomically with the state change.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/akazakov/tollgate/internal/ledger"
	"github.com/akazakov/tollgate/internal/promo"
	sharedDomain "github.com/akazakov/tollgate/internal/shared/domain"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/outbox"
	"github.com/akazakov/tollgate/internal/subscription/domain"
)

// PaymentEvent is the parsed payload of a processor notification.
type PaymentEvent struct {
	EventID   string
	EventType string
	PaymentID string
	UserID    int64
	Amount    string
	Currency  string
}

// Service applies payment events to the subscription state machine.
type Service struct {
	subs     domain.SubscriptionRepository
	users    domain.UserRepository
	payments domain.PaymentRepository
	outbox   outbox.Repository
	promo    *promo.Evaluator
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a subscription service.
func NewService(
	subs domain.SubscriptionRepository,
	users domain.UserRepository,
	payments domain.PaymentRepository,
	outboxRepo outbox.Repository,
	evaluator *promo.Evaluator,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		subs:     subs,
		users:    users,
		payments: payments,
		outbox:   outboxRepo,
		promo:    evaluator,
		logger:   logger,
		now:      time.Now,
	}
}

// HandlePaymentSucceeded activates or extends the payer's subscription and
// stages an access grant. Must run inside a transaction. Domain-level
// rejections are reported through the outcome, not the error: the ledger
// record still commits, so the processor stops retrying a payment the state
// machine will never accept.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, ev PaymentEvent) (string, error) {
	now := s.now().UTC()
	terms := s.promo.Terms(now)

	user, err := domain.NewUser(ev.UserID, "", "")
	if err != nil {
		s.logger.Warn("rejecting payment event", "event_id", ev.EventID, "error", err)
		return ledger.OutcomeRejected, nil
	}
	if err := s.users.EnsureExists(ctx, user); err != nil {
		return "", fmt.Errorf("failed to ensure user: %w", err)
	}

	if err := s.recordPaymentStatus(ctx, ev, domain.PaymentSucceeded); err != nil {
		return "", err
	}

	sub, err := s.subs.GetCurrentByUser(ctx, ev.UserID)
	switch {
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		sub, err = domain.NewSubscription(ev.UserID, "monthly")
		if err != nil {
			return ledger.OutcomeRejected, nil
		}
		if err := sub.Activate(ev.PaymentID, now, terms.PlanDuration); err != nil {
			return ledger.OutcomeRejected, nil
		}
		if err := s.subs.Save(ctx, sub); err != nil {
			return "", fmt.Errorf("failed to save subscription: %w", err)
		}
		if err := s.stageEvents(ctx, domain.NewAccessGrantRequested(sub, ev.PaymentID)); err != nil {
			return "", err
		}

	case err != nil:
		return "", fmt.Errorf("failed to load subscription: %w", err)

	case sub.Status() == domain.StatusPending:
		if err := sub.Activate(ev.PaymentID, now, terms.PlanDuration); err != nil {
			s.logger.Warn("activation rejected", "subscription_id", sub.ID(), "error", err)
			return ledger.OutcomeRejected, nil
		}
		if err := s.subs.Update(ctx, sub); err != nil {
			return "", fmt.Errorf("failed to update subscription: %w", err)
		}
		if err := s.stageEvents(ctx, domain.NewAccessGrantRequested(sub, ev.PaymentID)); err != nil {
			return "", err
		}

	default:
		if err := sub.Extend(ev.PaymentID, now, terms.PlanDuration); err != nil {
			s.logger.Warn("renewal rejected", "subscription_id", sub.ID(), "error", err)
			return ledger.OutcomeRejected, nil
		}
		if err := s.subs.Update(ctx, sub); err != nil {
			return "", fmt.Errorf("failed to update subscription: %w", err)
		}
		// A renewing member may have left or been removed during grace, so
		// the grant is re-staged; granting is idempotent downstream.
		if err := s.stageEvents(ctx,
			domain.NewSubscriptionRenewed(sub, ev.PaymentID),
			domain.NewAccessGrantRequested(sub, ev.PaymentID),
		); err != nil {
			return "", err
		}
	}

	s.logger.Info("payment applied",
		"payment_id", ev.PaymentID,
		"user_id", ev.UserID,
		"subscription_id", sub.ID(),
		"expires_at", sub.ExpiresAt(),
		"bonus_applied", terms.BonusApplied,
	)

	return ledger.OutcomeApplied, nil
}

// HandlePaymentCanceled records the cancellation. A pending subscription
// waiting on this payer is canceled; access was never granted so nothing is
// revoked.
func (s *Service) HandlePaymentCanceled(ctx context.Context, ev PaymentEvent) (string, error) {
	payment, err := s.payments.GetByID(ctx, ev.PaymentID)
	if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		return "", fmt.Errorf("failed to load payment: %w", err)
	}
	if payment != nil {
		payment.MarkCanceled()
		if err := s.payments.Update(ctx, payment); err != nil {
			return "", fmt.Errorf("failed to update payment: %w", err)
		}
	}

	sub, err := s.subs.GetCurrentByUser(ctx, ev.UserID)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		return ledger.OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub.Status() != domain.StatusPending {
		// An active subscription is unaffected by an abandoned renewal.
		return ledger.OutcomeIgnored, nil
	}

	sub.Cancel()
	if err := s.subs.Update(ctx, sub); err != nil {
		return "", fmt.Errorf("failed to update subscription: %w", err)
	}

	s.logger.Info("pending subscription canceled",
		"payment_id", ev.PaymentID,
		"user_id", ev.UserID,
		"subscription_id", sub.ID(),
	)

	return ledger.OutcomeApplied, nil
}

// HandleRefundSucceeded cancels the refunded subscription and stages an
// access revocation.
func (s *Service) HandleRefundSucceeded(ctx context.Context, ev PaymentEvent) (string, error) {
	payment, err := s.payments.GetByID(ctx, ev.PaymentID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		// A refund for a payment this store never recorded must not touch
		// whatever subscription the user holds now.
		s.logger.Warn("refund references unknown payment",
			"payment_id", ev.PaymentID,
			"user_id", ev.UserID,
		)
		return ledger.OutcomeRejected, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load payment: %w", err)
	}

	payment.MarkRefunded()
	if err := s.payments.Update(ctx, payment); err != nil {
		return "", fmt.Errorf("failed to update payment: %w", err)
	}
	if ev.UserID == 0 {
		ev.UserID = payment.UserID
	}

	sub, err := s.subs.GetCurrentByUser(ctx, ev.UserID)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		s.logger.Info("refund with no current subscription",
			"payment_id", ev.PaymentID,
			"user_id", ev.UserID,
		)
		return ledger.OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load subscription: %w", err)
	}

	sub.Cancel()
	if err := s.subs.Update(ctx, sub); err != nil {
		return "", fmt.Errorf("failed to update subscription: %w", err)
	}
	if err := s.stageEvents(ctx, domain.NewAccessRevokeRequested(sub, domain.RevokeReasonRefunded)); err != nil {
		return "", err
	}

	s.logger.Info("subscription canceled after refund",
		"payment_id", ev.PaymentID,
		"user_id", ev.UserID,
		"subscription_id", sub.ID(),
	)

	return ledger.OutcomeApplied, nil
}

func (s *Service) recordPaymentStatus(ctx context.Context, ev PaymentEvent, status domain.PaymentStatus) error {
	payment, err := s.payments.GetByID(ctx, ev.PaymentID)
	if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		return fmt.Errorf("failed to load payment: %w", err)
	}
	if payment == nil {
		payment = domain.NewPayment(ev.PaymentID, ev.UserID, ev.Amount, ev.Currency, "")
		payment.Status = status
		if err := s.payments.Save(ctx, payment); err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}
		return nil
	}
	payment.Status = status
	payment.UpdatedAt = s.now().UTC()
	if err := s.payments.Update(ctx, payment); err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return nil
}

func (s *Service) stageEvents(ctx context.Context, events ...sharedDomain.DomainEvent) error {
	msgs, err := outbox.FromEvents(events)
	if err != nil {
		return fmt.Errorf("failed to build outbox messages: %w", err)
	}
	if err := s.outbox.SaveBatch(ctx, msgs); err != nil {
		return fmt.Errorf("failed to stage outbox messages: %w", err)
	}
	return nil
}
