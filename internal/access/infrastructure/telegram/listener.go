package telegram

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// JoinRequestHandler decides the fate of a pending channel join request.
type JoinRequestHandler interface {
	HandleJoinRequest(ctx context.Context, userID int64) error
}

// Listener long-polls Telegram for join requests on the managed channel.
type Listener struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	handler JoinRequestHandler
	logger  *slog.Logger
}

// NewListener creates a join-request listener on the gateway's bot.
func NewListener(gateway *Gateway, handler JoinRequestHandler, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		bot:     gateway.bot,
		chatID:  gateway.chatID,
		handler: handler,
		logger:  logger,
	}
}

// Run consumes updates until the context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	cfg.AllowedUpdates = []string{"chat_join_request"}

	updates := l.bot.GetUpdatesChan(cfg)
	defer l.bot.StopReceivingUpdates()

	l.logger.Info("join request listener started", "chat_id", l.chatID)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("join request listener stopped")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			req := update.ChatJoinRequest
			if req == nil || req.Chat.ID != l.chatID {
				continue
			}
			if err := l.handler.HandleJoinRequest(ctx, req.From.ID); err != nil {
				// Left pending; the user can retry and the operator sees the log.
				l.logger.Error("failed to handle join request",
					"user_id", req.From.ID,
					"error", err,
				)
			}
		}
	}
}
