package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sharedDomain "github.com/akazakov/tollgate/internal/shared/domain"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/cache"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
	"github.com/akazakov/tollgate/internal/subscription/domain"
)

// SweeperConfig configures the expiry sweeper.
type SweeperConfig struct {
	Interval     time.Duration
	BatchSize    int
	GracePeriod  time.Duration
	ReminderLead time.Duration
}

// DefaultSweeperConfig returns sensible defaults.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:     15 * time.Minute,
		BatchSize:    100,
		GracePeriod:  48 * time.Hour,
		ReminderLead: 24 * time.Hour,
	}
}

// Sweeper advances subscriptions the clock has overtaken: active past expiry
// into grace, grace past its deadline into expired. Each subscription moves
// in its own transaction so one bad row never blocks the batch.
type Sweeper struct {
	uow    sharedPersistence.UnitOfWork
	subs   domain.SubscriptionRepository
	outbox outbox.Repository
	marker cache.OnceMarker
	config SweeperConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSweeper creates an expiry sweeper. The marker deduplicates expiry
// reminders across processes and restarts; it may be nil to disable
// reminders.
func NewSweeper(
	uow sharedPersistence.UnitOfWork,
	subs domain.SubscriptionRepository,
	outboxRepo outbox.Repository,
	marker cache.OnceMarker,
	config SweeperConfig,
	logger *slog.Logger,
) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		uow:    uow,
		subs:   subs,
		outbox: outboxRepo,
		marker: marker,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started",
		"interval", s.config.Interval,
		"grace_period", s.config.GracePeriod,
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("sweep failed", "error", err)
			}
			if err := s.remindExpiring(ctx); err != nil {
				s.logger.Error("reminder pass failed", "error", err)
			}
		}
	}
}

// SweepOnce advances all due subscriptions and returns how many moved.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now().UTC()

	due, err := s.subs.ListDue(ctx, now, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list due subscriptions: %w", err)
	}

	moved := 0
	for _, stale := range due {
		if err := s.sweepOne(ctx, stale, now); err != nil {
			s.logger.Error("failed to sweep subscription",
				"subscription_id", stale.ID(),
				"user_id", stale.UserID(),
				"error", err,
			)
			continue
		}
		moved++
	}

	if moved > 0 {
		s.logger.Info("sweep completed", "transitioned", moved, "due", len(due))
	}
	return moved, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, stale *domain.Subscription, now time.Time) error {
	return sharedPersistence.Transact(ctx, s.uow, func(txCtx context.Context) error {
		// Reload inside the transaction; a renewal may have landed since the
		// listing and then there is nothing to do.
		sub, err := s.subs.GetByID(txCtx, stale.ID())
		if err != nil {
			return err
		}

		switch sub.Status() {
		case domain.StatusActive:
			if sub.ExpiresAt().After(now) {
				return nil
			}
			if err := sub.BeginGrace(now, s.config.GracePeriod); err != nil {
				return err
			}
			// Expiry and grace deadline may both be behind us when the
			// sweeper was down; finish the job in one pass.
			if !sub.GraceUntil().After(now) {
				return s.finalizeExpiry(txCtx, sub, now)
			}
			s.logger.Info("subscription entered grace",
				"subscription_id", sub.ID(),
				"user_id", sub.UserID(),
				"grace_until", sub.GraceUntil(),
			)
			return s.subs.Update(txCtx, sub)

		case domain.StatusGrace:
			if sub.GraceUntil().After(now) {
				return nil
			}
			return s.finalizeExpiry(txCtx, sub, now)

		default:
			return nil
		}
	})
}

func (s *Sweeper) finalizeExpiry(ctx context.Context, sub *domain.Subscription, now time.Time) error {
	if err := sub.Expire(now); err != nil {
		return err
	}
	if err := s.subs.Update(ctx, sub); err != nil {
		return err
	}

	msgs, err := outbox.FromEvents([]sharedDomain.DomainEvent{
		domain.NewAccessRevokeRequested(sub, domain.RevokeReasonExpired),
		domain.NewSubscriptionExpired(sub, now),
	})
	if err != nil {
		return err
	}
	if err := s.outbox.SaveBatch(ctx, msgs); err != nil {
		return err
	}

	s.logger.Info("subscription expired",
		"subscription_id", sub.ID(),
		"user_id", sub.UserID(),
	)
	return nil
}

// remindExpiring stages one renewal reminder per subscription approaching
// its expiry. The once-marker makes the reminder fire exactly once even with
// several worker replicas.
func (s *Sweeper) remindExpiring(ctx context.Context) error {
	if s.marker == nil {
		return nil
	}
	now := s.now().UTC()
	cutoff := now.Add(s.config.ReminderLead)

	expiring, err := s.subs.ListExpiringBefore(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list expiring subscriptions: %w", err)
	}

	for _, sub := range expiring {
		key := fmt.Sprintf("expiry-reminder:%s:%d", sub.ID(), sub.ExpiresAt().Unix())
		won, err := s.marker.MarkOnce(ctx, key, s.config.ReminderLead+s.config.GracePeriod)
		if err != nil {
			s.logger.Warn("reminder marker unavailable", "error", err)
			return nil
		}
		if !won {
			continue
		}

		msg, err := outbox.NewMessage(domain.NewSubscriptionExpiring(sub))
		if err != nil {
			return err
		}
		if err := s.outbox.Save(ctx, msg); err != nil {
			return err
		}
		s.logger.Info("expiry reminder staged",
			"subscription_id", sub.ID(),
			"user_id", sub.UserID(),
			"expires_at", sub.ExpiresAt(),
		)
	}
	return nil
}
