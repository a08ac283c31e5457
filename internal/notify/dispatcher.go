package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/rewired-gh/econoracle/internal/logger"
	"github.com/rewired-gh/econoracle/internal/metrics"
	"github.com/rewired-gh/econoracle/internal/models"
	"github.com/rewired-gh/econoracle/internal/storage"
)

// Ledger is the part of the gate the dispatcher reports back to.
type Ledger interface {
	RecordSent(ctx context.Context, decision models.NotificationDecision) error
	Release(ctx context.Context, decision models.NotificationDecision) error
}

// AuditLog records send attempts.
type AuditLog interface {
	RecordNotification(ctx context.Context, n storage.Notification) error
}

var (
	// ErrNotAllowed is returned when Dispatch is handed a denied decision.
	ErrNotAllowed = errors.New("decision not allowed")
	// ErrUndelivered marks a notification no channel accepted. Its reservation
	// has been released.
	ErrUndelivered = errors.New("notification not delivered")
)

// Dispatcher sends approved notifications to every configured channel at a
// bounded rate and settles the gate reservation afterwards.
type Dispatcher struct {
	notifiers []Notifier
	ledger    Ledger
	audit     AuditLog
	limiter   *rate.Limiter
	now       func() time.Time
}

// NewDispatcher creates a dispatcher. ratePerSecond <= 0 disables rate
// limiting; audit may be nil. With no notifiers, messages go to the log.
func NewDispatcher(ledger Ledger, audit AuditLog, ratePerSecond float64, burst int, notifiers ...Notifier) *Dispatcher {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	if len(notifiers) == 0 {
		notifiers = []Notifier{LogNotifier{}}
	}
	return &Dispatcher{
		notifiers: notifiers,
		ledger:    ledger,
		audit:     audit,
		limiter:   rate.NewLimiter(limit, burst),
		now:       time.Now,
	}
}

// Channels returns the names of the configured notifiers.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Dispatch delivers an approved notification. If any channel accepts it the
// reservation is committed; if all fail, or the rate limiter wait is cancelled,
// it is released. Channel failures are joined into the returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) error {
	decision := n.Decision
	if !decision.Allowed {
		return fmt.Errorf("%w: %s %s (%s)", ErrNotAllowed, decision.EventID, decision.Kind, decision.Reason)
	}

	if err := d.limiter.Wait(ctx); err != nil {
		d.release(decision)
		return fmt.Errorf("%w: rate limiter wait cancelled: %w", ErrUndelivered, err)
	}

	var errs []error
	delivered := 0
	for _, notifier := range d.notifiers {
		err := notifier.Send(ctx, n)
		metrics.RecordNotification(string(decision.Kind), notifier.Name(), err)
		d.recordAudit(ctx, decision, notifier.Name(), err)
		if err != nil {
			logger.Error("Failed to send %s for %s via %s: %v", decision.Kind, decision.EventID, notifier.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
			continue
		}
		delivered++
	}

	if delivered == 0 {
		d.release(decision)
		return fmt.Errorf("%w: %w", ErrUndelivered, errors.Join(errs...))
	}

	// The send happened; commit even if ctx was cancelled meanwhile.
	if err := d.ledger.RecordSent(context.WithoutCancel(ctx), decision); err != nil {
		logger.Error("Failed to record %s for %s: %v", decision.Kind, decision.EventID, err)
		errs = append(errs, fmt.Errorf("failed to record send: %w", err))
	}
	logger.Info("Sent %s for %s to %d/%d channels", decision.Kind, decision.EventID, delivered, len(d.notifiers))
	return errors.Join(errs...)
}

func (d *Dispatcher) release(decision models.NotificationDecision) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.ledger.Release(ctx, decision); err != nil {
		logger.Warn("Failed to release reservation for %s %s: %v", decision.EventID, decision.Kind, err)
	}
}

func (d *Dispatcher) recordAudit(ctx context.Context, decision models.NotificationDecision, channel string, sendErr error) {
	if d.audit == nil {
		return
	}
	row := storage.Notification{
		DecisionID: decision.ID,
		EventID:    decision.EventID,
		Kind:       decision.Kind,
		Channel:    channel,
		SentAt:     d.now(),
		OK:         sendErr == nil,
		Detail:     decision.Detail,
	}
	if sendErr != nil {
		row.Detail = sendErr.Error()
	}
	if err := d.audit.RecordNotification(context.WithoutCancel(ctx), row); err != nil {
		logger.Warn("Failed to write audit row for %s: %v", decision.EventID, err)
	}
}

// Broadcast sends a plain notice to every channel, ignoring the rate limiter.
func (d *Dispatcher) Broadcast(ctx context.Context, text string) error {
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.SendText(ctx, text); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}
