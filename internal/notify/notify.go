// Package notify formats approved notification decisions and delivers them
// to chat channels.
//
// The Dispatcher is the gate's counterpart: for every approved decision it
// sends the message and then either commits the cooldown reservation
// (RecordSent) or drops it (Release) so a later cycle can retry.
package notify

import (
	"context"

	"github.com/rewired-gh/econoracle/internal/classifier"
	"github.com/rewired-gh/econoracle/internal/logger"
	"github.com/rewired-gh/econoracle/internal/models"
)

// Notification is everything needed to render one message.
type Notification struct {
	Decision       models.NotificationDecision
	Event          models.EconomicEvent
	Change         *models.ChangeRecord
	Surprise       *models.SurpriseRecord
	Classification *classifier.Classification
	// Summary and Confidence come from the AI reporter for ai_report notifications.
	Summary    string
	Confidence float64
}

// Notifier delivers messages to one channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	SendText(ctx context.Context, text string) error
}

// LogNotifier writes messages to the log instead of a chat. It is used when no
// chat channel is configured.
type LogNotifier struct{}

func (LogNotifier) Name() string { return "log" }

func (LogNotifier) Send(_ context.Context, n Notification) error {
	logger.Info("Notification [%s] %s", n.Decision.Kind, FormatMessage(n, n.Decision.DecidedAt).Plain())
	return nil
}

func (LogNotifier) SendText(_ context.Context, text string) error {
	logger.Info("Notice: %s", text)
	return nil
}
