// The webhook binary serves the HTTP surface: payment processor
// notifications, payment link creation and the post-payment return page.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akazakov/tollgate/adapter/api"
	"github.com/akazakov/tollgate/internal/app"
	"github.com/akazakov/tollgate/pkg/config"
	"github.com/akazakov/tollgate/pkg/observability"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logCfg := observability.DefaultLogConfig()
	if cfg.IsProduction() {
		logCfg = observability.ProductionLogConfig()
	}
	logCfg.Level = observability.LogLevel(cfg.LogLevel)
	logCfg.ServiceName = "tollgate-webhook"
	logger := observability.NewLogger(logCfg)

	logger.Info("starting tollgate webhook")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// The webhook process never talks to the channel; granting and
	// revocation run in the worker off the outbox.
	cfg.BotToken = ""

	c, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build container", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	serverCfg := api.DefaultServerConfig()
	serverCfg.Addr = cfg.WebhookAddr
	server := api.NewServer(
		serverCfg,
		api.NewWebhookHandler(c.Ingress, logger),
		api.NewPaymentHandler(c.Processor, c.Payments, c.Users, c.Evaluator, cfg.PaymentLinkTTL, cfg.BotURL, logger),
		logger,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", "error", err)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("tollgate webhook stopped")
}
