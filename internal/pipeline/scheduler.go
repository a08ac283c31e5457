package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rewired-gh/econoracle/internal/logger"
	"github.com/rewired-gh/econoracle/internal/notify"
)

// Notices receives failure and recovery notices.
type Notices interface {
	Broadcast(ctx context.Context, text string) error
}

// Maintenance is run on the sweep schedule.
type Maintenance func(ctx context.Context) error

// Scheduler runs the jobs of one Pipeline on cron schedules. All jobs share
// the pipeline's gate.
type Scheduler struct {
	pipeline *Pipeline
	jobs     []Job
	notices  Notices
	cron     *cron.Cron
	parser   cron.Parser
	now      func() time.Time

	mu     sync.Mutex
	health map[string]*jobHealth
	ctx    context.Context
	cancel context.CancelFunc
}

type jobHealth struct {
	failures     int
	firstFailure time.Time
}

// NewScheduler creates a scheduler. notices may be nil.
func NewScheduler(p *Pipeline, notices Notices, jobs ...Job) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &Scheduler{
		pipeline: p,
		jobs:     jobs,
		notices:  notices,
		cron:     c,
		parser:   parser,
		now:      time.Now,
		health:   make(map[string]*jobHealth),
	}
}

// Validate checks every job's cron spec.
func (s *Scheduler) Validate() error {
	for _, job := range s.jobs {
		if _, err := s.parser.Parse(job.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", job.Schedule, job.Name, err)
		}
	}
	return nil
}

// AddMaintenance registers fn under name on spec.
func (s *Scheduler) AddMaintenance(name, spec string, fn Maintenance) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx := s.context()
		if err := fn(ctx); err != nil {
			logger.Warn("%s failed: %v", name, err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	return nil
}

// Start registers the jobs and starts the cron loop. Jobs are not run
// immediately; call RunNow for an initial cycle.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	for _, job := range s.jobs {
		if _, err := s.cron.AddFunc(job.Schedule, func() { s.RunNow(s.context(), job) }); err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", job.Schedule, job.Name, err)
		}
		logger.Info("Scheduled %s job (%s, lookback %v, horizon %v)", job.Name, job.Schedule, job.Lookback, job.Horizon)
	}
	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// RunNow runs one cycle of job and handles the failure bookkeeping.
func (s *Scheduler) RunNow(ctx context.Context, job Job) {
	_, err := s.pipeline.RunCycle(ctx, job)
	s.handleCycleResult(ctx, job.Name, err)
}

// handleCycleResult sends a notice on the first failure of a streak and a
// recovery notice on the first success after it.
func (s *Scheduler) handleCycleResult(ctx context.Context, job string, err error) {
	s.mu.Lock()
	h, ok := s.health[job]
	if !ok {
		h = &jobHealth{}
		s.health[job] = h
	}
	var notice string
	if err != nil {
		h.failures++
		if h.failures == 1 {
			h.firstFailure = s.now()
			notice = notify.FormatCycleError(job, err)
		}
	} else {
		if h.failures > 0 {
			notice = notify.FormatRecovery(job, h.failures, s.now().Sub(h.firstFailure))
		}
		h.failures = 0
	}
	s.mu.Unlock()

	if err != nil {
		logger.Error("%s cycle failed: %v", job, err)
	}
	if notice == "" || s.notices == nil {
		return
	}
	if sendErr := s.notices.Broadcast(context.WithoutCancel(ctx), notice); sendErr != nil {
		logger.Warn("Failed to send %s cycle notice: %v", job, sendErr)
	}
}

// Failures returns the current consecutive failure count of job.
func (s *Scheduler) Failures(job string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.health[job]; ok {
		return h.failures
	}
	return 0
}
