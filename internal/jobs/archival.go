package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Archiver archives memories that have gone stale.
type Archiver interface {
	ArchiveStale(olderThan time.Duration) (int64, error)
}

// ArchivalConfig holds the dependencies of the archival job.
type ArchivalConfig struct {
	Store     Archiver
	Schedule  string
	OlderThan time.Duration
	Logger    *slog.Logger
}

// Archival periodically archives temporary and deprecated memories nobody
// has touched within OlderThan.
type Archival struct {
	store     Archiver
	schedule  string
	olderThan time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	cron    *cronlib.Cron
	running atomic.Bool
}

// NewArchival creates an archival job. Call Init, then Start.
func NewArchival(cfg ArchivalConfig) *Archival {
	olderThan := cfg.OlderThan
	if olderThan <= 0 {
		olderThan = 90 * 24 * time.Hour
	}
	return &Archival{
		store:     cfg.Store,
		schedule:  cfg.Schedule,
		olderThan: olderThan,
		logger:    loggerOrDefault(cfg.Logger),
	}
}

// Init validates the schedule and registers the job.
func (a *Archival) Init() error {
	if a.store == nil {
		return errors.New("jobs: archival: store is required")
	}
	if err := ValidateSchedule(a.schedule); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	c := newCron(a.logger)
	if _, err := c.AddFunc(a.schedule, func() { _, _ = a.RunOnce(context.Background()) }); err != nil {
		return err
	}
	a.cron = c
	return nil
}

// Start begins firing the job on its schedule. It is a no-op before Init
// or when already running.
func (a *Archival) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cron == nil || !a.running.CompareAndSwap(false, true) {
		return
	}
	a.cron.Start()
	a.logger.Info("archival job started", "schedule", a.schedule, "older_than", a.olderThan)
}

// IsRunning reports whether the schedule is active.
func (a *Archival) IsRunning() bool {
	return a.running.Load()
}

// RunOnce archives stale memories immediately.
func (a *Archival) RunOnce(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := a.store.ArchiveStale(a.olderThan)
	if err != nil {
		a.logger.Error("archival run failed", "error", err)
		return 0, err
	}
	if n > 0 {
		a.logger.Info("archived stale memories", "count", n)
	}
	return n, nil
}

// Cleanup stops the schedule and waits for a run in progress to finish.
// Safe to call more than once.
func (a *Archival) Cleanup() {
	a.mu.Lock()
	c := a.cron
	a.mu.Unlock()
	if c == nil || !a.running.CompareAndSwap(true, false) {
		return
	}
	<-c.Stop().Done()
	a.logger.Info("archival job stopped")
}
