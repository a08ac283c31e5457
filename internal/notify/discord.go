package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/econoracle/internal/logger"
	"github.com/rewired-gh/econoracle/internal/models"
)

// Embed colours per notification kind.
var kindColors = map[models.NotificationKind]int{
	models.KindNewEvent:           0x3498DB,
	models.KindForecastChange:     0xF1C40F,
	models.KindActualAnnouncement: 0xE74C3C,
	models.KindAIReport:           0x9B59B6,
}

// DiscordNotifier posts messages to a Discord webhook
type DiscordNotifier struct {
	webhookURL     string
	username       string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
	now            func() time.Time
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"`
	Embeds   []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// NewDiscord creates a Discord webhook notifier
func NewDiscord(webhookURL, username string, timeout time.Duration, maxRetries int, retryDelayBase time.Duration) *DiscordNotifier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &DiscordNotifier{
		webhookURL:     webhookURL,
		username:       username,
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		now:            time.Now,
	}
}

func (d *DiscordNotifier) Name() string { return "discord" }

// Send renders n as an embed and posts it
func (d *DiscordNotifier) Send(ctx context.Context, n Notification) error {
	msg := FormatMessage(n, d.now())
	return d.post(ctx, discordPayload{
		Username: d.username,
		Embeds: []discordEmbed{{
			Title:       msg.Title,
			Description: strings.Join(msg.Lines, "\n"),
			Color:       kindColors[n.Decision.Kind],
			Timestamp:   n.Decision.DecidedAt.UTC().Format(time.RFC3339),
		}},
	})
}

// SendText posts a plain notice
func (d *DiscordNotifier) SendText(ctx context.Context, text string) error {
	return d.post(ctx, discordPayload{Username: d.username, Content: text})
}

func (d *DiscordNotifier) post(ctx context.Context, payload discordPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	var lastErr error
	wait := time.Duration(0)
	for i := 0; i < d.maxRetries; i++ {
		if i > 0 {
			if wait <= 0 {
				wait = d.retryDelayBase * time.Duration(i)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait = 0
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			logger.Warn("Discord webhook failed (attempt %d/%d): %v", i+1, d.maxRetries, err)
			continue
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			wait = retryAfter(resp.Header.Get("Retry-After"))
			lastErr = fmt.Errorf("rate limited: %s", respBody)
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		default:
			return fmt.Errorf("webhook rejected with status %d: %s", resp.StatusCode, respBody)
		}
		logger.Warn("Discord webhook attempt %d/%d: %v", i+1, d.maxRetries, lastErr)
	}

	return fmt.Errorf("failed to post webhook after %d retries: %w", d.maxRetries, lastErr)
}

// retryAfter parses a Retry-After header given in (possibly fractional) seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
