// Package telegram implements the channel gateway on the Telegram Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/akazakov/tollgate/internal/access/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	createLinkAttempts = 3
	retryBaseDelay     = 500 * time.Millisecond
)

// Gateway talks to the Telegram Bot API for one managed channel.
type Gateway struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewGateway authenticates the bot and binds it to the channel.
func NewGateway(token string, chatID int64, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate bot: %w", err)
	}
	logger.Info("telegram bot authenticated", "bot_username", bot.Self.UserName)
	return &Gateway{bot: bot, chatID: chatID, logger: logger}, nil
}

// CreateInviteLink mints a join-request invite link. The Bot API flakes under
// load, so the call retries with backoff before giving up.
func (g *Gateway) CreateInviteLink(ctx context.Context, name string, expiresAt time.Time) (string, error) {
	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:         tgbotapi.ChatConfig{ChatID: g.chatID},
		Name:               name,
		ExpireDate:         int(expiresAt.Unix()),
		CreatesJoinRequest: true,
	}

	var lastErr error
	for attempt := 1; attempt <= createLinkAttempts; attempt++ {
		resp, err := g.bot.Request(cfg)
		if err == nil {
			var link struct {
				InviteLink string `json:"invite_link"`
			}
			if err := json.Unmarshal(resp.Result, &link); err != nil {
				return "", fmt.Errorf("failed to decode invite link: %w", err)
			}
			return link.InviteLink, nil
		}

		lastErr = err
		g.logger.Warn("invite link creation failed",
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(retryBaseDelay << (attempt - 1)):
		}
	}
	return "", fmt.Errorf("failed to create invite link after %d attempts: %w", createLinkAttempts, lastErr)
}

// RevokeInviteLink invalidates an unused invite link.
func (g *Gateway) RevokeInviteLink(_ context.Context, inviteLink string) error {
	_, err := g.bot.Request(tgbotapi.RevokeChatInviteLinkConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: g.chatID},
		InviteLink: inviteLink,
	})
	if err != nil {
		return fmt.Errorf("failed to revoke invite link: %w", err)
	}
	return nil
}

// ApproveJoinRequest lets a pending join request through.
func (g *Gateway) ApproveJoinRequest(_ context.Context, userID int64) error {
	_, err := g.bot.Request(tgbotapi.ApproveChatJoinRequestConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: g.chatID},
		UserID:     userID,
	})
	if err != nil {
		return fmt.Errorf("failed to approve join request: %w", err)
	}
	return nil
}

// DeclineJoinRequest rejects a pending join request.
func (g *Gateway) DeclineJoinRequest(_ context.Context, userID int64) error {
	_, err := g.bot.Request(tgbotapi.DeclineChatJoinRequest{
		ChatConfig: tgbotapi.ChatConfig{ChatID: g.chatID},
		UserID:     userID,
	})
	if err != nil {
		return fmt.Errorf("failed to decline join request: %w", err)
	}
	return nil
}

// RemoveMember kicks the user without a lasting ban. Ban then unban: the
// unban lifts the restriction so a renewed subscriber can join again.
func (g *Gateway) RemoveMember(_ context.Context, userID int64) error {
	_, err := g.bot.Request(tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: g.chatID,
			UserID: userID,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to ban member: %w", err)
	}

	_, err = g.bot.Request(tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: g.chatID,
			UserID: userID,
		},
		OnlyIfBanned: true,
	})
	if err != nil {
		return fmt.Errorf("failed to unban member: %w", err)
	}
	return nil
}

// SendMessage delivers a direct message to the user.
func (g *Gateway) SendMessage(_ context.Context, userID int64, text string) error {
	msg := tgbotapi.NewMessage(userID, text)
	if _, err := g.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

var _ domain.ChannelGateway = (*Gateway)(nil)
