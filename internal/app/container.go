// Package app wires configuration, storage, messaging and services into the
// dependency graph the binaries share.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	accessApp "github.com/akazakov/tollgate/internal/access/application"
	accessDomain "github.com/akazakov/tollgate/internal/access/domain"
	accessPersistence "github.com/akazakov/tollgate/internal/access/infrastructure/persistence"
	"github.com/akazakov/tollgate/internal/access/infrastructure/telegram"
	adminApp "github.com/akazakov/tollgate/internal/admin/application"
	adminDomain "github.com/akazakov/tollgate/internal/admin/domain"
	adminPersistence "github.com/akazakov/tollgate/internal/admin/infrastructure/persistence"
	"github.com/akazakov/tollgate/internal/ledger"
	"github.com/akazakov/tollgate/internal/payment/processor"
	"github.com/akazakov/tollgate/internal/promo"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/cache"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/database"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/eventbus"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/migrations"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
	subApp "github.com/akazakov/tollgate/internal/subscription/application"
	subDomain "github.com/akazakov/tollgate/internal/subscription/domain"
	subPersistence "github.com/akazakov/tollgate/internal/subscription/infrastructure/persistence"
	"github.com/akazakov/tollgate/pkg/config"
	"github.com/akazakov/tollgate/pkg/observability"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Container holds the wired application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	sqliteDB *sql.DB
	pgPool   *pgxpool.Pool

	UnitOfWork    sharedPersistence.UnitOfWork
	Subscriptions subDomain.SubscriptionRepository
	Users         subDomain.UserRepository
	Payments      subDomain.PaymentRepository
	Credentials   accessDomain.CredentialRepository
	Approvals     accessDomain.ApprovalRepository
	Ledger        ledger.Repository
	Settings      adminDomain.SettingsRepository
	Outbox        outbox.Repository

	Evaluator           *promo.Evaluator
	SubscriptionService *subApp.Service
	Ingress             *subApp.Ingress
	Sweeper             *subApp.Sweeper
	Admin               *adminApp.Service
	Processor           *processor.Client

	// Gateway and Granter are nil when no bot token is configured; the
	// webhook and CLI processes run without them.
	Gateway *telegram.Gateway
	Granter *accessApp.Granter

	Marker    cache.OnceMarker
	Publisher eventbus.Publisher
	Registry  *eventbus.ConsumerRegistry
	Health    *observability.HealthRegistry

	// inProcessBus is set in single-process mode (no RabbitMQ); the worker
	// then consumes events on the publish path instead of a broker queue.
	inProcessBus *eventbus.InProcessEventBus
	rabbitURL    string
}

// NewContainer wires the application from configuration and runs migrations.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{
		Config: cfg,
		Logger: logger,
		Health: observability.NewHealthRegistry(),
	}

	if err := c.openDatabase(ctx); err != nil {
		return nil, err
	}
	if err := c.openMarker(); err != nil {
		c.Close()
		return nil, err
	}
	c.openEventBus()

	c.Evaluator = promo.NewEvaluator(promo.EvaluatorConfig{
		Window:         promo.Window{Start: cfg.BonusWindowStart, End: cfg.BonusWindowEnd},
		PriceRegular:   cfg.PriceRegular,
		PriceBonus:     cfg.PriceBonus,
		Currency:       cfg.Currency,
		PlanDuration:   cfg.PlanDuration,
		BonusExtension: cfg.BonusExtension,
	})

	c.Processor = processor.NewClient(processor.ClientConfig{
		ShopID:       cfg.ShopID,
		SecretKey:    cfg.ShopSecretKey,
		ReturnURL:    cfg.ReturnURL,
		ReceiptEmail: cfg.ReceiptEmail,
	}, logger)

	c.SubscriptionService = subApp.NewService(
		c.Subscriptions, c.Users, c.Payments, c.Outbox, c.Evaluator, logger)
	c.Ingress = subApp.NewIngress(
		c.UnitOfWork, c.Ledger, c.SubscriptionService, []byte(cfg.WebhookSecret), logger)

	sweeperCfg := subApp.DefaultSweeperConfig()
	sweeperCfg.Interval = cfg.SweepInterval
	sweeperCfg.GracePeriod = cfg.GracePeriod
	c.Sweeper = subApp.NewSweeper(
		c.UnitOfWork, c.Subscriptions, c.Outbox, c.Marker, sweeperCfg, logger)

	c.Admin = adminApp.NewService(
		c.UnitOfWork, c.Subscriptions, c.Users, c.Payments,
		c.Credentials, c.Approvals, c.Ledger, c.Settings, c.Evaluator, logger)

	if cfg.BotToken != "" {
		gateway, err := telegram.NewGateway(cfg.BotToken, cfg.ChannelID, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to connect telegram gateway: %w", err)
		}
		c.Gateway = gateway

		granterCfg := accessApp.DefaultGranterConfig()
		granterCfg.InviteTTL = cfg.InviteTTL
		granterCfg.GracePeriod = cfg.GracePeriod
		c.Granter = accessApp.NewGranter(
			c.UnitOfWork, c.Credentials, c.Approvals, c.Subscriptions,
			gateway, granterCfg, logger)
	}

	// An operator-set window override outlives restarts.
	if err := c.Admin.LoadWindow(ctx); err != nil {
		logger.Warn("failed to load window override", "error", err)
	}

	return c, nil
}

func (c *Container) openDatabase(ctx context.Context) error {
	cfg := c.Config

	switch database.Driver(cfg.DatabaseDriver) {
	case database.DriverPostgres:
		pool, err := database.OpenPostgres(ctx, database.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return fmt.Errorf("failed to open postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		c.pgPool = pool
		c.UnitOfWork = sharedPersistence.NewPostgresUnitOfWork(pool)
		c.Subscriptions = subPersistence.NewPostgresSubscriptionRepository(pool)
		c.Users = subPersistence.NewPostgresUserRepository(pool)
		c.Payments = subPersistence.NewPostgresPaymentRepository(pool)
		c.Credentials = accessPersistence.NewPostgresCredentialRepository(pool)
		c.Approvals = accessPersistence.NewPostgresApprovalRepository(pool)
		c.Ledger = ledger.NewPostgresRepository(pool)
		c.Settings = adminPersistence.NewPostgresSettingsRepository(pool)
		c.Outbox = outbox.NewPostgresRepository(pool)
		c.Health.Register("database", observability.DatabaseHealthChecker(pool.Ping))

	case database.DriverSQLite, "":
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open sqlite: %w", err)
		}
		if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
			db.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		c.sqliteDB = db
		c.UnitOfWork = sharedPersistence.NewSQLiteUnitOfWork(db)
		c.Subscriptions = subPersistence.NewSQLiteSubscriptionRepository(db)
		c.Users = subPersistence.NewSQLiteUserRepository(db)
		c.Payments = subPersistence.NewSQLitePaymentRepository(db)
		c.Credentials = accessPersistence.NewSQLiteCredentialRepository(db)
		c.Approvals = accessPersistence.NewSQLiteApprovalRepository(db)
		c.Ledger = ledger.NewSQLiteRepository(db)
		c.Settings = adminPersistence.NewSQLiteSettingsRepository(db)
		c.Outbox = outbox.NewSQLiteRepository(db)
		c.Health.Register("database", observability.DatabaseHealthChecker(db.PingContext))

	default:
		return fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
	return nil
}

func (c *Container) openMarker() error {
	if c.Config.RedisURL == "" {
		c.Marker = cache.NewMemoryOnceMarker()
		return nil
	}
	marker, err := cache.NewRedisOnceMarker(c.Config.RedisURL, "tollgate:")
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	c.Marker = marker
	c.Health.Register("redis", observability.RedisHealthChecker(marker.Ping))
	return nil
}

func (c *Container) openEventBus() {
	c.rabbitURL = c.Config.RabbitMQURL
	if c.rabbitURL != "" {
		c.Registry = eventbus.NewConsumerRegistry(c.Logger)
		return
	}
	bus := eventbus.NewInProcessEventBus(c.Logger)
	c.inProcessBus = bus
	c.Publisher = bus
	c.Registry = bus.GetRegistry()
}

// ConnectPublisher opens the broker publisher. In single-process mode the
// in-process bus is already the publisher and this is a no-op.
func (c *Container) ConnectPublisher() error {
	if c.rabbitURL == "" {
		return nil
	}
	pub, err := eventbus.NewRabbitMQPublisher(c.rabbitURL, c.Logger)
	if err != nil {
		if c.Config.IsDevelopment() {
			c.Logger.Warn("rabbitmq not available, using noop publisher", "error", err)
			c.Publisher = eventbus.NewNoopPublisher(c.Logger)
			return nil
		}
		return fmt.Errorf("failed to connect rabbitmq publisher: %w", err)
	}
	c.Publisher = pub
	c.Health.Register("rabbitmq", observability.RabbitMQHealthChecker(pub.Ping))
	return nil
}

// NewConsumer opens the broker consumer feeding the registry. Returns nil in
// single-process mode, where consumers run on the publish path.
func (c *Container) NewConsumer() (*eventbus.RabbitMQConsumer, error) {
	if c.rabbitURL == "" {
		return nil, nil
	}
	return eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
		URL:    c.rabbitURL,
		Logger: c.Logger,
	}, c.Registry)
}

// RegisterConsumers attaches the access consumers to the registry. Requires
// the Telegram gateway.
func (c *Container) RegisterConsumers() error {
	if c.Granter == nil {
		return fmt.Errorf("bot token is required to run consumers")
	}
	c.Registry.Register(accessApp.NewGrantConsumer(c.Granter, c.Logger))
	c.Registry.Register(accessApp.NewRevokeConsumer(c.Granter, c.Logger))
	c.Registry.Register(accessApp.NewReminderConsumer(c.Granter, c.Logger))
	return nil
}

// OutboxProcessor builds the relay that drains the outbox to the publisher.
func (c *Container) OutboxProcessor() *outbox.Processor {
	cfg := outbox.DefaultProcessorConfig()
	cfg.PollInterval = c.Config.OutboxPollInterval
	cfg.BatchSize = c.Config.OutboxBatchSize
	cfg.MaxRetries = c.Config.OutboxMaxRetries
	return outbox.NewProcessor(c.Outbox, c.Publisher, cfg, c.Logger)
}

// Close releases every held connection.
func (c *Container) Close() {
	if c.Publisher != nil {
		_ = c.Publisher.Close()
	}
	if c.Marker != nil {
		_ = c.Marker.Close()
	}
	if c.sqliteDB != nil {
		_ = c.sqliteDB.Close()
	}
	if c.pgPool != nil {
		c.pgPool.Close()
	}
}
