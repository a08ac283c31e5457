// Package gate decides whether a notification may fire.
//
// A decision first applies the per-kind rules, then reserves the
// (event_id, kind) key in a CooldownStore. The reservation is held until
// the dispatcher reports back with RecordSent or Release, so concurrent
// callers for the same key see at most one approval per cooldown window.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/econoracle/internal/logger"
	"github.com/rewired-gh/econoracle/internal/metrics"
	"github.com/rewired-gh/econoracle/internal/models"
)

// Gate evaluates rules and owns the cooldown ledger. It is safe for concurrent use.
type Gate struct {
	cfg   Config
	rules rules
	store CooldownStore
	now   func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces time.Now. Tests use it to step through cooldown windows.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// New validates cfg and builds a Gate. A nil store defaults to a MemoryStore.
func New(cfg Config, store CooldownStore, opts ...Option) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = NewMemoryStore()
	}
	g := &Gate{
		cfg:   cfg,
		rules: compileRules(&cfg),
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Config returns the configuration the gate was built with.
func (g *Gate) Config() Config {
	return g.cfg
}

// Store returns the underlying ledger.
func (g *Gate) Store() CooldownStore {
	return g.store
}

// Evaluate applies the rules for kind without touching the ledger.
func (g *Gate) Evaluate(e models.EconomicEvent, kind models.NotificationKind, s Signals) (bool, string) {
	return g.rules.evaluate(e, kind, s)
}

// ShouldNotify decides whether a notification of kind may be sent for e.
// An approved decision holds a reservation on the key; the caller must follow
// up with RecordSent after a successful send or Release after a failed one.
// A store failure denies the notification and is returned as the error.
func (g *Gate) ShouldNotify(ctx context.Context, e models.EconomicEvent, kind models.NotificationKind, s Signals) (models.NotificationDecision, error) {
	now := g.now()
	decision := models.NotificationDecision{
		ID:        uuid.NewString(),
		EventID:   e.EventID,
		Kind:      kind,
		DecidedAt: now,
	}

	ok, detail := g.rules.evaluate(e, kind, s)
	if !ok {
		decision.Reason = models.ReasonRuleRejected
		decision.Detail = detail
		g.record(decision)
		return decision, nil
	}

	key := models.CooldownKey{EventID: e.EventID, Kind: kind}
	cooldown := g.cfg.Cooldown(kind)
	reserved, err := g.store.TryReserve(ctx, key, decision.ID, now, cooldown, g.cfg.ReservationTimeout)
	if err != nil {
		metrics.RecordStoreError("reserve")
		decision.Reason = models.ReasonCooldownActive
		decision.Detail = "cooldown ledger unavailable"
		g.record(decision)
		return decision, fmt.Errorf("gate: %w", err)
	}
	if !reserved {
		decision.Reason = models.ReasonCooldownActive
		decision.Detail = fmt.Sprintf("within %s cooldown or send in flight", cooldown)
		g.record(decision)
		return decision, nil
	}

	decision.Allowed = true
	decision.Reason = models.ReasonApproved
	decision.Detail = detail
	g.record(decision)
	return decision, nil
}

func (g *Gate) record(d models.NotificationDecision) {
	metrics.RecordDecision(string(d.Kind), string(d.Reason))
	logger.Debug("Gate %s %s: %s (%s)", d.EventID, d.Kind, d.Reason, d.Detail)
}

// RecordSent commits d's reservation after the downstream send succeeded.
// If the reservation lapsed and another decision took the key, the ledger is
// left alone and the error wraps ErrReservationLost.
func (g *Gate) RecordSent(ctx context.Context, d models.NotificationDecision) error {
	key := models.CooldownKey{EventID: d.EventID, Kind: d.Kind}
	if err := g.store.Commit(ctx, key, d.ID, g.now()); err != nil {
		if errors.Is(err, ErrReservationLost) {
			logger.Warn("Gate %s %s: send finished after reservation %s lapsed", d.EventID, d.Kind, d.ID)
		}
		metrics.RecordStoreError("commit")
		return fmt.Errorf("gate: %w", err)
	}
	return nil
}

// Release drops d's reservation after a failed send so a later cycle can retry.
func (g *Gate) Release(ctx context.Context, d models.NotificationDecision) error {
	key := models.CooldownKey{EventID: d.EventID, Kind: d.Kind}
	if err := g.store.Release(ctx, key, d.ID); err != nil {
		metrics.RecordStoreError("release")
		return fmt.Errorf("gate: %w", err)
	}
	return nil
}

// Entry returns the ledger entry for (eventID, kind), if any.
func (g *Gate) Entry(ctx context.Context, eventID string, kind models.NotificationKind) (models.CooldownEntry, bool, error) {
	return g.store.Get(ctx, models.CooldownKey{EventID: eventID, Kind: kind})
}

// CleanupExpired removes entries last sent more than maxAge ago, plus
// reservations that lapsed without a send. A non-positive maxAge uses the
// configured max_retention.
func (g *Gate) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = g.cfg.MaxRetention
	}
	removed, err := g.store.Sweep(ctx, g.now(), maxAge)
	if err != nil {
		metrics.RecordStoreError("sweep")
		return removed, fmt.Errorf("gate: %w", err)
	}

	remaining := -1
	if counter, ok := g.store.(interface{ Len() int }); ok {
		remaining = counter.Len()
	}
	metrics.RecordSweep(removed, remaining)
	if removed > 0 {
		logger.Info("Cooldown sweep removed %d entries", removed)
	}
	return removed, nil
}
