// Package worker runs the portal's periodic jobs: the intent verification
// sweep and the campaign reconciliation audit.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/skopiLandToken/skopi-sub000/internal/logging"
	"github.com/skopiLandToken/skopi-sub000/internal/service"
)

const (
	jobSweep = "verification_sweep"
	jobAudit = "reconciliation_audit"

	defaultRunTimeout = 2 * time.Minute
)

// Sweeper verifies pending intents in bulk
type Sweeper interface {
	Run(ctx context.Context, limit int) (*service.SweepReport, error)
}

// Auditor reconciles campaign counters against allocations
type Auditor interface {
	Audit(ctx context.Context, campaignID *string) (*service.AuditReport, error)
}

// SchedulerConfig holds configuration for the job scheduler
type SchedulerConfig struct {
	Sweeper       Sweeper
	Auditor       Auditor
	SweepSchedule string
	AuditSchedule string
	SweepLimit    int
	// RunTimeout bounds a single job run (default: 2m)
	RunTimeout time.Duration
	Logger     *logging.Logger
}

// JobStatus reports the last run of a scheduled job
type JobStatus struct {
	Name         string        `json:"name"`
	Schedule     string        `json:"schedule"`
	Runs         int           `json:"runs"`
	LastRun      time.Time     `json:"lastRun,omitempty"`
	LastDuration time.Duration `json:"lastDuration"`
	LastError    string        `json:"lastError,omitempty"`
	NextRun      time.Time     `json:"nextRun,omitempty"`
}

// Status is a snapshot of the scheduler
type Status struct {
	Running bool        `json:"running"`
	Jobs    []JobStatus `json:"jobs"`
}

// Scheduler runs the sweep and audit on cron schedules. A job never
// overlaps with its own previous run, and a panic in one run is logged
// without stopping the scheduler.
type Scheduler struct {
	cron       *cron.Cron
	sweeper    Sweeper
	auditor    Auditor
	sweepLimit int
	runTimeout time.Duration
	logger     *logging.Logger

	mu      sync.RWMutex
	running bool
	jobs    map[string]*JobStatus
	entries map[string]cron.EntryID
}

// NewScheduler creates a scheduler and registers its jobs. An empty
// schedule disables that job; an invalid one is an error.
func NewScheduler(cfg *SchedulerConfig) (*Scheduler, error) {
	if cfg.Sweeper == nil && cfg.Auditor == nil {
		return nil, fmt.Errorf("scheduler needs at least one job")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	runTimeout := cfg.RunTimeout
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}

	cl := cronLogger{s: logger.Zap().Sugar()}
	s := &Scheduler{
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl))),
		sweeper:    cfg.Sweeper,
		auditor:    cfg.Auditor,
		sweepLimit: cfg.SweepLimit,
		runTimeout: runTimeout,
		logger:     logger,
		jobs:       make(map[string]*JobStatus),
		entries:    make(map[string]cron.EntryID),
	}

	if cfg.Sweeper != nil && cfg.SweepSchedule != "" {
		if err := s.register(jobSweep, cfg.SweepSchedule, func() { _ = s.RunSweep(context.Background()) }); err != nil {
			return nil, err
		}
	}
	if cfg.Auditor != nil && cfg.AuditSchedule != "" {
		if err := s.register(jobAudit, cfg.AuditSchedule, func() { _ = s.RunAudit(context.Background()) }); err != nil {
			return nil, err
		}
	}
	if len(s.entries) == 0 {
		return nil, fmt.Errorf("no job has a schedule")
	}
	return s, nil
}

func (s *Scheduler) register(name, spec string, fn func()) error {
	id, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	s.entries[name] = id
	s.jobs[name] = &JobStatus{Name: name, Schedule: spec}
	s.logger.WithFields(map[string]interface{}{"job": name, "schedule": spec}).Info("job scheduled")
	return nil
}

// Start begins running the scheduled jobs
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.cron.Start()
	s.logger.Info("scheduler started")
	return nil
}

// Stop stops scheduling new runs and waits for in-flight runs to finish
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with jobs still running")
		return ctx.Err()
	}
}

// RunSweep runs one verification sweep now
func (s *Scheduler) RunSweep(ctx context.Context) error {
	if s.sweeper == nil {
		return fmt.Errorf("sweep job is not configured")
	}
	return s.run(ctx, jobSweep, func(ctx context.Context) error {
		report, err := s.sweeper.Run(ctx, s.sweepLimit)
		if err != nil {
			return err
		}
		if len(report.Errors) > 0 {
			logging.FromContext(ctx).WithField("errors", len(report.Errors)).Warn("sweep finished with per-intent errors")
		}
		return nil
	})
}

// RunAudit runs one reconciliation audit over all campaigns now
func (s *Scheduler) RunAudit(ctx context.Context) error {
	if s.auditor == nil {
		return fmt.Errorf("audit job is not configured")
	}
	return s.run(ctx, jobAudit, func(ctx context.Context) error {
		_, err := s.auditor.Audit(ctx, nil)
		return err
	})
}

func (s *Scheduler) run(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	log := s.logger.WithField("job", name)
	ctx = logging.WithLogger(ctx, log)

	started := time.Now()
	err := runRecovered(ctx, fn)
	elapsed := time.Since(started)

	s.mu.Lock()
	st, ok := s.jobs[name]
	if !ok {
		st = &JobStatus{Name: name}
		s.jobs[name] = st
	}
	st.Runs++
	st.LastRun = started.UTC()
	st.LastDuration = elapsed
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		log.WithError(err).WithField("duration", elapsed.String()).Error("job run failed")
		return err
	}
	log.WithField("duration", elapsed.String()).Debug("job run finished")
	return nil
}

// runRecovered turns a panic in fn into an error so the run is recorded as failed.
func runRecovered(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// GetStatus returns the scheduler status
func (s *Scheduler) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{Running: s.running, Jobs: make([]JobStatus, 0, len(s.jobs))}
	for _, name := range []string{jobSweep, jobAudit} {
		st, ok := s.jobs[name]
		if !ok {
			continue
		}
		cp := *st
		if id, ok := s.entries[name]; ok && s.running {
			cp.NextRun = s.cron.Entry(id).Next
		}
		status.Jobs = append(status.Jobs, cp)
	}
	return status
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
