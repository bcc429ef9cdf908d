// Package scheduler runs the engine's periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mmynk/susu/internal/config"
	"github.com/mmynk/susu/internal/metrics"
)

// Job names.
const (
	JobOpenCycles     = "open_cycles"
	JobGraceReminders = "grace_reminders"
	JobPromotePayouts = "promote_payouts"
)

// Runner is the part of the engine the jobs drive. Each call reports how many
// items it touched.
type Runner interface {
	OpenDueCycles(ctx context.Context) (int, error)
	SweepGraceExpiring(ctx context.Context) (int, error)
	PromoteDuePayouts(ctx context.Context) (int, error)
}

// Scheduler manages the cron entries of the background jobs.
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]func(context.Context) (int, error)
	specs   map[string]string
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID // job name → cron entry
}

// New creates a scheduler for the given job specs. Jobs with an empty spec are disabled.
func New(r Runner, specs config.Jobs, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		jobs: map[string]func(context.Context) (int, error){
			JobOpenCycles:     r.OpenDueCycles,
			JobGraceReminders: r.SweepGraceExpiring,
			JobPromotePayouts: r.PromoteDuePayouts,
		},
		specs: map[string]string{
			JobOpenCycles:     specs.OpenCycles,
			JobGraceReminders: specs.GraceReminders,
			JobPromotePayouts: specs.PromotePayouts,
		},
		metrics: m,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start registers every enabled job and starts the cron loop. Jobs run with a context
// derived from ctx that is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, name := range s.names() {
		spec := s.specs[name]
		if spec == "" {
			s.logger.Info("Job disabled", "job", name)
			continue
		}
		id, err := s.cron.AddFunc(spec, func() { _, _ = s.Run(s.ctx, name) })
		if err != nil {
			s.cancel()
			return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
		}
		s.entries[name] = id
		s.logger.Info("Scheduled job", "job", name, "schedule", spec)
	}
	s.cron.Start()
	s.logger.Info("Job scheduler started", "jobs", len(s.entries))
	return nil
}

// Stop stops the cron loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.logger.Info("Job scheduler stopped")
}

// Run executes one job immediately.
func (s *Scheduler) Run(ctx context.Context, name string) (int, error) {
	job, ok := s.jobs[name]
	if !ok {
		return 0, fmt.Errorf("unknown job %q", name)
	}
	start := time.Now()
	n, err := job(ctx)
	s.metrics.JobRun(name, err)
	if err != nil {
		s.logger.ErrorContext(ctx, "Job failed", "job", name, "error", err, "duration", time.Since(start))
		return n, err
	}
	s.logger.DebugContext(ctx, "Job finished", "job", name, "count", n, "duration", time.Since(start))
	return n, nil
}

// Entries returns the names of the scheduled jobs with their next run time.
func (s *Scheduler) Entries() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}

func (s *Scheduler) names() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
