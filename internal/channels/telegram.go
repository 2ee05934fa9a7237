package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basket/chatdo/internal/shared"
)

const telegramHelp = "Hi! I'm your task assistant. Tell me things like:\n" +
	"- add a task to buy milk\n" +
	"- show my pending tasks\n" +
	"- complete the milk task\n" +
	"- change buy milk to buy oat milk\n" +
	"- delete the milk task"

// TelegramChannel bridges Telegram chats to the chat router. Each
// Telegram user maps to a stable internal user id, so tasks created
// over Telegram and over the HTTP API share one list.
type TelegramChannel struct {
	token      string
	allowedIDs map[int64]struct{}
	router     ChatRouter
	logger     *slog.Logger
	bot        *tgbotapi.BotAPI
}

// NewTelegramChannel creates a new Telegram channel. An empty
// allowedIDs list means no one is allowed; the channel should not be
// started in that case.
func NewTelegramChannel(token string, allowedIDs []int64, router ChatRouter, logger *slog.Logger) *TelegramChannel {
	allowed := make(map[int64]struct{})
	for _, id := range allowedIDs {
		allowed[id] = struct{}{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramChannel{
		token:      token,
		allowedIDs: allowed,
		router:     router,
		logger:     logger,
	}
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	var err error
	t.bot, err = tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram init failed: %w", err)
	}

	t.logger.Info("telegram bot started", "user", t.bot.Self.UserName)

	// Reconnection loop with exponential backoff.
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := t.bot.GetUpdatesChan(u)

		pollErr := t.pollUpdates(ctx, updates)

		// Always clean up the old polling goroutine before reconnecting.
		t.bot.StopReceivingUpdates()

		if pollErr != nil {
			t.logger.Warn("telegram poll disconnected, reconnecting", "error", pollErr, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		// pollUpdates returned nil means ctx was cancelled.
		return nil
	}
}

// pollUpdates reads from the update channel until ctx is done, the channel
// closes, or no updates arrive within 2.5x the long-poll timeout (stall
// detection). Returns nil on context cancellation, or an error to trigger
// reconnection.
func (t *TelegramChannel) pollUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	// tgbotapi uses a 60s long-poll timeout. If we see nothing for 2.5
	// minutes the connection is likely dead (the library blocks rather
	// than closing the channel).
	const stallTimeout = 150 * time.Second

	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			if update.Message == nil {
				continue
			}
			if _, ok := t.allowedIDs[update.Message.From.ID]; !ok {
				t.logger.Warn("telegram access denied", "user_id", update.Message.From.ID, "user_name", update.Message.From.UserName)
				continue
			}
			t.handleMessage(ctx, update.Message)

		case <-timer.C:
			return fmt.Errorf("no updates received for %v (possible disconnect)", stallTimeout)
		}
	}
}

func (t *TelegramChannel) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	reply, ok := t.respondTo(ctx, msg.From.ID, msg.Text)
	if !ok {
		return
	}
	t.reply(msg.Chat.ID, reply)
}

// respondTo computes the reply for one incoming message. The second
// return is false when the message should be ignored outright.
func (t *TelegramChannel) respondTo(ctx context.Context, fromID int64, text string) (string, bool) {
	content := strings.TrimSpace(text)
	if content == "" {
		return "", false
	}

	if content == "/start" || content == "/help" {
		return telegramHelp, true
	}

	userID := TelegramUserID(fromID)
	ctx = shared.WithTraceID(ctx, shared.NewTraceID())

	outcome := t.router.Route(ctx, userID, content)
	if !outcome.Success {
		t.logger.Warn("telegram route failed", "user_id", userID, "intent", outcome.Intent)
	}
	return outcome.Reply, true
}

func (t *TelegramChannel) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("failed to send telegram reply", "error", err)
	}
}

// TelegramUserID maps a Telegram account to the token the identity
// layer normalizes. The "telegram:" prefix keeps it from colliding
// with API-supplied user ids.
func TelegramUserID(id int64) string {
	return fmt.Sprintf("telegram:%d", id)
}
