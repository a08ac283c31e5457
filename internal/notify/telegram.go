package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/econoracle/internal/logger"
)

// TelegramNotifier sends messages through the Telegram Bot API
type TelegramNotifier struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	now            func() time.Time
}

// NewTelegram creates a Telegram notifier against the public Bot API
func NewTelegram(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*TelegramNotifier, error) {
	return NewTelegramWithEndpoint(botToken, chatID, tgbotapi.APIEndpoint, maxRetries, retryDelayBase)
}

// NewTelegramWithEndpoint creates a Telegram notifier against a custom Bot API
// endpoint, formatted like tgbotapi.APIEndpoint.
func NewTelegramWithEndpoint(botToken, chatID, endpoint string, maxRetries int, retryDelayBase time.Duration) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(botToken, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &TelegramNotifier{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		now:            time.Now,
	}, nil
}

func (c *TelegramNotifier) Name() string { return "telegram" }

// Send renders n as MarkdownV2 and sends it
func (c *TelegramNotifier) Send(ctx context.Context, n Notification) error {
	return c.send(ctx, FormatMessage(n, c.now()).MarkdownV2())
}

// SendText sends a plain notice such as a failure or recovery message
func (c *TelegramNotifier) SendText(ctx context.Context, text string) error {
	return c.send(ctx, escapeMarkdownV2(text))
}

func (c *TelegramNotifier) send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}

		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		logger.Warn("Telegram send failed (attempt %d/%d): %v", i+1, c.maxRetries, err)
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}
