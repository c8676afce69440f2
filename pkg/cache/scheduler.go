package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Cleaner is a cache whose expired entries are purged on demand.
type Cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Scheduler runs cache cleanup on a cron schedule.
//
// Common schedules:
//   - "@every 10m"    - Every ten minutes
//   - "0 */6 * * *"   - Every 6 hours
//   - "0 3 * * *"     - Daily at 3 AM
type Scheduler struct {
	cleaner Cleaner
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewScheduler creates a cleanup scheduler for c.
func NewScheduler(c Cleaner) *Scheduler {
	return &Scheduler{
		cleaner: c,
		cron:    cron.New(),
		logger:  slog.Default().With("component", "cache.scheduler"),
	}
}

// ValidateSchedule reports whether spec is a cron expression the scheduler
// accepts.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return nil
}

// Start schedules the cleanup job.
func (s *Scheduler) Start(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if err := ValidateSchedule(spec); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(spec, s.runCleanup); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("cache cleanup scheduler started", "schedule", spec)
	return nil
}

func (s *Scheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := s.cleaner.Cleanup(ctx)
	if err != nil {
		s.logger.Error("scheduled cache cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		s.logger.Info("scheduled cache cleanup completed", "deleted_count", deleted)
	} else {
		s.logger.Debug("scheduled cache cleanup completed, nothing expired")
	}
}

// Stop stops the scheduler and waits for a running cleanup to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("cache cleanup scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled cleanup time, or nil if not running.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if !s.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
