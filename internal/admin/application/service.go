// Package application implements operator commands: purging all state,
// moving the promotional window, and backfilling expiry dates.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	accessDomain "github.com/akazakov/tollgate/internal/access/domain"
	adminDomain "github.com/akazakov/tollgate/internal/admin/domain"
	"github.com/akazakov/tollgate/internal/ledger"
	"github.com/akazakov/tollgate/internal/promo"
	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
	subDomain "github.com/akazakov/tollgate/internal/subscription/domain"
)

// ErrInvalidWindow is returned when a window's end precedes its start.
var ErrInvalidWindow = errors.New("window end precedes start")

// PurgeReport counts what a purge removed.
type PurgeReport struct {
	Users         int64
	Subscriptions int64
	Payments      int64
	Credentials   int64
	Approvals     int64
	LedgerRecords int64
}

// Stats is a snapshot of stored record counts.
type Stats struct {
	Users         int64
	Subscriptions int64
	Payments      int64
	Credentials   int64
	Approvals     int64
}

// Service executes operator commands against the shared store.
type Service struct {
	uow       sharedPersistence.UnitOfWork
	subs      subDomain.SubscriptionRepository
	users     subDomain.UserRepository
	payments  subDomain.PaymentRepository
	creds     accessDomain.CredentialRepository
	approvals accessDomain.ApprovalRepository
	ledger    ledger.Repository
	settings  adminDomain.SettingsRepository
	evaluator *promo.Evaluator
	logger    *slog.Logger
}

// NewService creates the admin service.
func NewService(
	uow sharedPersistence.UnitOfWork,
	subs subDomain.SubscriptionRepository,
	users subDomain.UserRepository,
	payments subDomain.PaymentRepository,
	creds accessDomain.CredentialRepository,
	approvals accessDomain.ApprovalRepository,
	ledgerRepo ledger.Repository,
	settings adminDomain.SettingsRepository,
	evaluator *promo.Evaluator,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		uow:       uow,
		subs:      subs,
		users:     users,
		payments:  payments,
		creds:     creds,
		approvals: approvals,
		ledger:    ledgerRepo,
		settings:  settings,
		evaluator: evaluator,
		logger:    logger,
	}
}

// Purge deletes every user, subscription, payment, credential, approval and
// ledger record in one transaction. Meant for test environments; there is no
// undo.
func (s *Service) Purge(ctx context.Context) (PurgeReport, error) {
	var report PurgeReport
	err := sharedPersistence.Transact(ctx, s.uow, func(txCtx context.Context) error {
		var err error
		// Children before parents; subscriptions reference users.
		if report.Credentials, err = s.creds.DeleteAll(txCtx); err != nil {
			return fmt.Errorf("failed to purge credentials: %w", err)
		}
		if report.Approvals, err = s.approvals.DeleteAll(txCtx); err != nil {
			return fmt.Errorf("failed to purge approvals: %w", err)
		}
		if report.Payments, err = s.payments.DeleteAll(txCtx); err != nil {
			return fmt.Errorf("failed to purge payments: %w", err)
		}
		if report.Subscriptions, err = s.subs.DeleteAll(txCtx); err != nil {
			return fmt.Errorf("failed to purge subscriptions: %w", err)
		}
		if report.Users, err = s.users.DeleteAll(txCtx); err != nil {
			return fmt.Errorf("failed to purge users: %w", err)
		}
		if report.LedgerRecords, err = s.ledger.DeleteAll(txCtx); err != nil {
			return fmt.Errorf("failed to purge ledger: %w", err)
		}
		return nil
	})
	if err != nil {
		return PurgeReport{}, err
	}

	s.logger.Warn("store purged",
		"users", report.Users,
		"subscriptions", report.Subscriptions,
		"payments", report.Payments,
		"credentials", report.Credentials,
		"approvals", report.Approvals,
		"ledger_records", report.LedgerRecords,
	)
	return report, nil
}

// ResetWindow replaces the promotional window. A zero window clears the
// override so pricing falls back to the configured default. The override is
// persisted so both processes pick it up after a restart.
func (s *Service) ResetWindow(ctx context.Context, window promo.Window) error {
	if !window.IsZero() && !window.Valid() {
		return ErrInvalidWindow
	}

	if window.IsZero() {
		if err := s.settings.Delete(ctx, adminDomain.KeyPromoWindowStart); err != nil {
			return fmt.Errorf("failed to clear window start: %w", err)
		}
		if err := s.settings.Delete(ctx, adminDomain.KeyPromoWindowEnd); err != nil {
			return fmt.Errorf("failed to clear window end: %w", err)
		}
	} else {
		if err := s.settings.Set(ctx, adminDomain.KeyPromoWindowStart, window.Start.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("failed to store window start: %w", err)
		}
		if err := s.settings.Set(ctx, adminDomain.KeyPromoWindowEnd, window.End.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("failed to store window end: %w", err)
		}
	}

	s.evaluator.SetWindow(window)
	s.logger.Info("promotional window reset",
		"start", window.Start,
		"end", window.End,
		"cleared", window.IsZero(),
	)
	return nil
}

// LoadWindow applies any persisted window override to the evaluator. Called
// at startup; an absent override leaves the configured window in place.
func (s *Service) LoadWindow(ctx context.Context) error {
	startStr, err := s.settings.Get(ctx, adminDomain.KeyPromoWindowStart)
	if errors.Is(err, adminDomain.ErrSettingNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load window start: %w", err)
	}
	endStr, err := s.settings.Get(ctx, adminDomain.KeyPromoWindowEnd)
	if errors.Is(err, adminDomain.ErrSettingNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load window end: %w", err)
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return fmt.Errorf("failed to parse window start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return fmt.Errorf("failed to parse window end: %w", err)
	}

	s.evaluator.SetWindow(promo.Window{Start: start, End: end})
	s.logger.Info("promotional window override loaded", "start", start, "end", end)
	return nil
}

// BackfillExpiry raises every current subscription's expiry that falls before
// the target up to the target. Used to compensate members after an outage.
func (s *Service) BackfillExpiry(ctx context.Context, until time.Time) (int64, error) {
	var n int64
	err := sharedPersistence.Transact(ctx, s.uow, func(txCtx context.Context) error {
		var err error
		n, err = s.subs.UpdateExpiriesBefore(txCtx, until)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to backfill expiries: %w", err)
	}

	s.logger.Info("expiries backfilled", "until", until, "updated", n)
	return n, nil
}

// CollectStats returns record counts across the store.
func (s *Service) CollectStats(ctx context.Context) (Stats, error) {
	var stats Stats
	var err error
	if stats.Users, err = s.users.Count(ctx); err != nil {
		return Stats{}, err
	}
	if stats.Subscriptions, err = s.subs.Count(ctx); err != nil {
		return Stats{}, err
	}
	if stats.Payments, err = s.payments.Count(ctx); err != nil {
		return Stats{}, err
	}
	if stats.Credentials, err = s.creds.Count(ctx); err != nil {
		return Stats{}, err
	}
	if stats.Approvals, err = s.approvals.Count(ctx); err != nil {
		return Stats{}, err
	}
	return stats, nil
}
