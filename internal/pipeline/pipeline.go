// Package pipeline runs one detection cycle end to end: fetch a calendar
// window, compare it with the previous snapshot, ask the gate about every
// candidate notification and hand approved ones to the dispatcher.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/econoracle/internal/calendar"
	"github.com/rewired-gh/econoracle/internal/classifier"
	"github.com/rewired-gh/econoracle/internal/gate"
	"github.com/rewired-gh/econoracle/internal/logger"
	"github.com/rewired-gh/econoracle/internal/metrics"
	"github.com/rewired-gh/econoracle/internal/models"
	"github.com/rewired-gh/econoracle/internal/monitor"
	"github.com/rewired-gh/econoracle/internal/notify"
	"github.com/rewired-gh/econoracle/internal/storage"
)

// Fetcher returns the calendar events scheduled within [from, to].
type Fetcher interface {
	FetchEvents(ctx context.Context, from, to time.Time) (calendar.FetchResult, error)
}

// SnapshotStore persists the event list seen by each job.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap models.Snapshot) error
	LatestSnapshot(ctx context.Context, source string) (models.Snapshot, error)
}

// Report is an AI assessment of one event.
type Report struct {
	Confidence float64
	Summary    string
}

// Reporter produces AI assessments. It is optional.
type Reporter interface {
	Report(ctx context.Context, e models.EconomicEvent) (Report, error)
}

// Sender delivers approved notifications and settles their reservations.
type Sender interface {
	Dispatch(ctx context.Context, n notify.Notification) error
}

// Job is one scheduled cycle. Snapshots are kept per job name, so jobs with
// different windows never diff against each other.
type Job struct {
	Name     string
	Schedule string
	Lookback time.Duration
	Horizon  time.Duration
}

// CycleReport summarizes one RunCycle.
type CycleReport struct {
	Job           string
	SnapshotID    string
	Baseline      bool
	Fetched       int
	Skipped       int
	Changes       int
	NewEvents     int
	Announcements int
	Surprises     monitor.SurpriseStats
	Approved      int
	Sent          int
	SendFailures  int
	// Deferred counts events kept at their previous state in the saved
	// snapshot because a notification for them could not be delivered.
	Deferred      int
}

// cycle is the mutable state of one RunCycle.
type cycle struct {
	job      Job
	now      time.Time
	report   *CycleReport
	deferred map[string]struct{}
}

// Pipeline wires the analyzers, the gate and the dispatcher together.
type Pipeline struct {
	fetcher   Fetcher
	snapshots SnapshotStore
	gate      *gate.Gate
	sender    Sender
	differ    *monitor.Differ
	analyzer  *monitor.SurpriseAnalyzer
	reporter  Reporter
	topK      int
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithReporter enables ai_report notifications for the topK highest priority
// events of each cycle.
func WithReporter(r Reporter, topK int) Option {
	return func(p *Pipeline) {
		p.reporter = r
		p.topK = topK
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline.
func New(fetcher Fetcher, snapshots SnapshotStore, g *gate.Gate, sender Sender, differ *monitor.Differ, analyzer *monitor.SurpriseAnalyzer, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:   fetcher,
		snapshots: snapshots,
		gate:      g,
		sender:    sender,
		differ:    differ,
		analyzer:  analyzer,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AIReportsEnabled reports whether ai_report notifications can fire, which
// requires a Reporter set with WithReporter.
func (p *Pipeline) AIReportsEnabled() bool {
	return p.reporter != nil && p.topK > 0
}

// RunCycle executes one cycle of job. The first cycle of a job only records a
// baseline snapshot. Undelivered notifications are counted, not returned:
// their reservation was released and the affected events are saved at their
// previous state, so the next cycle detects them again.
func (p *Pipeline) RunCycle(ctx context.Context, job Job) (report CycleReport, err error) {
	start := p.now()
	report.Job = job.Name
	defer func() {
		metrics.RecordCycle(job.Name, p.now().Sub(start), err)
	}()

	logger.Info("Starting %s cycle", job.Name)

	from, to := start.Add(-job.Lookback), start.Add(job.Horizon)
	fetched, err := p.fetcher.FetchEvents(ctx, from, to)
	if err != nil {
		return report, fmt.Errorf("failed to fetch events: %w", err)
	}
	for _, skipped := range fetched.Skipped {
		logger.Warn("Skipped calendar row: %v", skipped)
	}
	events := dedupe(fetched.Events)
	report.Fetched = len(events)
	report.Skipped = len(fetched.Skipped)
	logger.Info("Fetched %d events between %s and %s (%d rows skipped)",
		len(events), from.Format(time.RFC3339), to.Format(time.RFC3339), report.Skipped)

	previous, err := p.snapshots.LatestSnapshot(ctx, job.Name)
	switch {
	case errors.Is(err, storage.ErrSnapshotNotFound):
		report.Baseline = true
	case err != nil:
		return report, fmt.Errorf("failed to load previous snapshot: %w", err)
	}

	c := &cycle{job: job, now: start, report: &report, deferred: make(map[string]struct{})}
	if !report.Baseline {
		if err := p.detect(ctx, c, previous.Events, events); err != nil {
			return report, err
		}
	} else {
		logger.Info("No previous %s snapshot, recording baseline", job.Name)
	}

	snap := models.Snapshot{
		ID:      uuid.NewString(),
		Source:  job.Name,
		TakenAt: start,
		Events:  carryOver(previous.Events, events, c.deferred),
	}
	report.Deferred = len(c.deferred)
	if err := p.snapshots.SaveSnapshot(ctx, snap); err != nil {
		return report, fmt.Errorf("failed to save snapshot: %w", err)
	}
	report.SnapshotID = snap.ID

	logger.Info("%s cycle completed in %v: %d changes, %d new, %d announcements, %d sent",
		job.Name, p.now().Sub(start), report.Changes, report.NewEvents, report.Announcements, report.Sent)
	return report, nil
}

func (p *Pipeline) detect(ctx context.Context, c *cycle, oldEvents, newEvents []models.EconomicEvent) error {
	job, now, report := c.job, c.now, c.report
	byID := make(map[string]models.EconomicEvent, len(newEvents))
	for _, e := range newEvents {
		byID[e.EventID] = e
	}

	changes, diffErrs := p.differ.Diff(oldEvents, newEvents)
	for _, de := range diffErrs {
		logger.Warn("Diff skipped event: %v", de)
	}
	added := monitor.DetectNewEvents(oldEvents, newEvents)
	report.NewEvents = len(added)
	metrics.RecordDetections(job.Name, string(models.KindNewEvent), len(added))

	// A first-seen event is announced as new_event, not as a forecast change.
	isNew := make(map[string]bool, len(added))
	for _, e := range added {
		isNew[e.EventID] = true
	}
	significant := p.differ.Significant(changes)
	changes = significant[:0]
	for _, r := range significant {
		if !isNew[r.EventID] {
			changes = append(changes, r)
		}
	}
	report.Changes = len(changes)
	metrics.RecordDetections(job.Name, string(models.KindForecastChange), len(changes))

	bulk, err := p.analyzer.CalculateBulk(ctx, monitor.DetectAnnouncements(oldEvents, newEvents))
	if err != nil {
		return fmt.Errorf("failed to calculate surprises: %w", err)
	}
	for _, de := range bulk.Skipped {
		logger.Warn("Surprise skipped event: %v", de)
	}
	report.Announcements = len(bulk.Records)
	report.Surprises = bulk.Stats
	metrics.RecordDetections(job.Name, string(models.KindActualAnnouncement), len(bulk.Records))

	for _, e := range added {
		p.notify(ctx, e, models.KindNewEvent, gate.Signals{Classification: classify(e, now)}, notify.Notification{}, c)
	}

	for _, change := range changes {
		e, ok := byID[change.EventID]
		if !ok {
			continue
		}
		p.notify(ctx, e, models.KindForecastChange,
			gate.Signals{Change: &change, Classification: classify(e, now)},
			notify.Notification{Change: &change}, c)
	}

	for _, surprise := range bulk.Records {
		metrics.RecordSurprise(string(surprise.Magnitude))
		e, ok := byID[surprise.EventID]
		if !ok {
			continue
		}
		p.notify(ctx, e, models.KindActualAnnouncement,
			gate.Signals{Surprise: &surprise, Classification: classify(e, now)},
			notify.Notification{Surprise: &surprise}, c)
	}

	if p.AIReportsEnabled() {
		p.aiReports(ctx, c, newEvents)
	}
	return nil
}

func (p *Pipeline) aiReports(ctx context.Context, c *cycle, events []models.EconomicEvent) {
	now := c.now
	full := 1.0
	for _, scored := range classifier.TopPriority(events, p.topK, now) {
		e := scored.Event
		// No point asking the reporter about events the rules reject at any confidence.
		if ok, _ := p.gate.Evaluate(e, models.KindAIReport, gate.Signals{AIConfidence: &full}); !ok {
			continue
		}
		r, err := p.reporter.Report(ctx, e)
		if err != nil {
			logger.Warn("AI report for %s failed: %v", e.EventID, err)
			continue
		}
		confidence := r.Confidence
		p.notify(ctx, e, models.KindAIReport,
			gate.Signals{AIConfidence: &confidence, Classification: classify(e, now)},
			notify.Notification{Summary: r.Summary, Confidence: confidence}, c)
	}
}

// notify asks the gate about one candidate and dispatches it when approved.
// extra carries the kind-specific payload.
func (p *Pipeline) notify(ctx context.Context, e models.EconomicEvent, kind models.NotificationKind, s gate.Signals, extra notify.Notification, c *cycle) {
	decision, err := p.gate.ShouldNotify(ctx, e, kind, s)
	if err != nil {
		logger.Error("Gate check for %s %s failed: %v", e.EventID, kind, err)
		c.deferred[e.EventID] = struct{}{}
		return
	}
	if !decision.Allowed {
		return
	}
	c.report.Approved++

	n := extra
	n.Decision = decision
	n.Event = e
	n.Classification = s.Classification
	if err := p.sender.Dispatch(ctx, n); err != nil {
		logger.Warn("Dispatch of %s for %s failed: %v", kind, e.EventID, err)
		if errors.Is(err, notify.ErrUndelivered) {
			c.report.SendFailures++
			c.deferred[e.EventID] = struct{}{}
			return
		}
	}
	c.report.Sent++
}

// carryOver returns current with every deferred event replaced by its
// previous version, or dropped if it had none.
func carryOver(previous, current []models.EconomicEvent, deferred map[string]struct{}) []models.EconomicEvent {
	if len(deferred) == 0 {
		return current
	}
	old := make(map[string]models.EconomicEvent, len(previous))
	for _, e := range previous {
		old[e.EventID] = e
	}
	out := make([]models.EconomicEvent, 0, len(current))
	for _, e := range current {
		if _, ok := deferred[e.EventID]; !ok {
			out = append(out, e)
			continue
		}
		if prev, ok := old[e.EventID]; ok {
			out = append(out, prev)
		}
	}
	return out
}

func classify(e models.EconomicEvent, now time.Time) *classifier.Classification {
	c := classifier.Classify(e, now)
	return &c
}

// dedupe keeps the first occurrence of every event id.
func dedupe(events []models.EconomicEvent) []models.EconomicEvent {
	seen := make(map[string]struct{}, len(events))
	out := make([]models.EconomicEvent, 0, len(events))
	for _, e := range events {
		if e.EventID == "" {
			continue
		}
		if _, dup := seen[e.EventID]; dup {
			logger.Warn("Dropping repeated event id %s", e.EventID)
			continue
		}
		seen[e.EventID] = struct{}{}
		out = append(out, e)
	}
	return out
}
