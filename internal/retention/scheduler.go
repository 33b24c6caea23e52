// Package retention empties the trash on a cron schedule: tasks and sessions
// soft-deleted more than a configured number of days ago are removed for good.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/deeppomo/deeppomo/internal/logging"
)

// Purger permanently removes rows soft-deleted before cutoff.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// Target names a Purger for logging.
type Target struct {
	Name   string
	Purger Purger
}

// Config holds the schedule and the retention window.
type Config struct {
	Schedule string // standard five-field cron spec or descriptor such as @daily
	Days     int
}

// Scheduler runs the purge on a cron schedule
type Scheduler struct {
	config  Config
	targets []Target
	now     func() time.Time
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
	entryID cron.EntryID
	logger  *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now when computing the cutoff.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a scheduler purging targets.
func NewScheduler(config Config, targets []Target, opts ...Option) *Scheduler {
	s := &Scheduler{
		config:  config,
		targets: targets,
		now:     time.Now,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		logger:  logging.WithComponent("retention"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks the schedule and window without starting anything.
func (c Config) Validate() error {
	if c.Days < 1 {
		return fmt.Errorf("retention days must be at least 1, got %d", c.Days)
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", c.Schedule, err)
	}
	return nil
}

// Start registers the job and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("retention scheduler already running")
	}
	if err := s.config.Validate(); err != nil {
		return err
	}

	entryID, err := s.cron.AddFunc(s.config.Schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("purge failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return err
	}

	s.entryID = entryID
	s.cron.Start()
	s.running = true

	s.logger.Info("retention scheduler started",
		slog.String("schedule", s.config.Schedule),
		slog.Int("days", s.config.Days),
		slog.Time("next_run", s.cron.Entry(s.entryID).Next),
	)
	return nil
}

// Stop waits for a running purge to finish and stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info("retention scheduler stopped")
}

// NextRun returns the next scheduled run, or the zero time when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// IsRunning returns whether the scheduler is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Cutoff returns the instant before which trashed rows are purged.
func (s *Scheduler) Cutoff() time.Time {
	return s.now().UTC().AddDate(0, 0, -s.config.Days)
}

// RunOnce purges every target immediately and returns the rows removed per
// target name. It keeps going after a failing target and joins the errors.
func (s *Scheduler) RunOnce(ctx context.Context) (map[string]int64, error) {
	cutoff := s.Cutoff()
	removed := make(map[string]int64, len(s.targets))

	var errs []error
	for _, t := range s.targets {
		n, err := t.Purger.Purge(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		removed[t.Name] = n
	}

	s.logger.Info("purge finished", slog.Time("cutoff", cutoff), slog.Any("removed", removed))
	return removed, errors.Join(errs...)
}
