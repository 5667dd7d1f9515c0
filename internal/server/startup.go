package server

import (
	"context"
	"fmt"
	"time"

	"github.com/HendryAvila/recall/internal/jobs"
	"github.com/HendryAvila/recall/internal/memory"
)

// MetaServerVersion is the metadata key holding the version that last
// opened the database.
const MetaServerVersion = "server_version"

const (
	warmupText        = "recall warmup"
	credentialTimeout = 10 * time.Second
)

// Start runs the startup sequence. Only a storage failure is returned;
// every later step logs and moves on.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.ensureStorage(ctx); err != nil {
		return fmt.Errorf("server: startup: %w", err)
	}
	store, err := r.Store(ctx)
	if err != nil {
		return fmt.Errorf("server: startup: %w", err)
	}

	r.versionDiagnostics(store)
	r.warmModel(ctx)
	r.validateCredentials(ctx)
	r.startSessions(store)
	r.startJobs(store)
	r.ScheduleRecoveryScan()
	return nil
}

func (r *Runtime) versionDiagnostics(store *memory.Store) {
	prev, ok, err := store.GetMeta(MetaServerVersion)
	switch {
	case err != nil:
		r.logger.Warn("read server version failed", "error", err)
	case ok && prev != r.version:
		r.logger.Info("server version changed since last run", "previous", prev, "current", r.version)
	}
	if err := store.SetMeta(MetaServerVersion, r.version); err != nil {
		r.logger.Warn("record server version failed", "error", err)
	}

	r.Go("version-check", func(ctx context.Context) {
		res := r.checkVersion(ctx, r.version)
		if res == nil {
			return
		}
		r.update.Store(res)
		if res.UpdateAvailable {
			r.logger.Info("update available", "current", res.CurrentVersion, "latest", res.LatestVersion, "url", res.ReleaseURL)
		}
	})
}

func (r *Runtime) warmModel(ctx context.Context) {
	defer func() {
		r.modelReady.Store(true)
		r.advance(StateModelWarm)
	}()
	if r.embedder == nil || !r.embedder.ShouldWarmEagerly() {
		return
	}
	start := time.Now()
	if _, err := r.embedder.Embed(ctx, warmupText); err != nil {
		r.logger.Warn("embedding warm-up failed", "model", r.embedder.ModelID(), "error", err)
		return
	}
	r.logger.Info("embedding model warm", "model", r.embedder.ModelID(), "took", time.Since(start))
}

func (r *Runtime) validateCredentials(ctx context.Context) {
	if r.embedder == nil {
		return
	}
	if r.cfg.SkipAPIValidation() {
		r.logger.Debug("embedding credential check skipped")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, credentialTimeout)
	defer cancel()
	if err := r.embedder.ValidateCredentials(ctx); err != nil {
		r.logger.Warn("embedding credentials rejected, semantic search will degrade", "model", r.embedder.ModelID(), "error", err)
	}
}

func (r *Runtime) startSessions(store *memory.Store) {
	if !r.sessions.IsEnabled() {
		return
	}
	if err := r.sessions.Init(store); err != nil {
		r.logger.Warn("session init failed", "error", err)
		return
	}
	n, err := r.sessions.ResetInterrupted()
	if err != nil {
		r.logger.Warn("reset interrupted sessions failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("previous sessions were interrupted", "count", n)
	}
}

func (r *Runtime) startJobs(store *memory.Store) {
	archival := jobs.NewArchival(jobs.ArchivalConfig{
		Store:     store,
		Schedule:  r.cfg.Jobs.ArchiveSchedule,
		OlderThan: r.cfg.Jobs.ArchiveAfter,
		Logger:    r.logger,
	})
	if err := archival.Init(); err != nil {
		r.logger.Warn("archival job disabled", "error", err)
	} else {
		archival.Start()
		r.mu.Lock()
		r.archival = archival
		r.mu.Unlock()
	}

	if r.embedder == nil {
		return
	}
	retry := jobs.NewRetry(jobs.RetryConfig{
		Queue:       store,
		Provider:    r.embedder,
		Schedule:    r.cfg.Jobs.RetrySchedule,
		BatchSize:   r.cfg.Jobs.RetryBatch,
		MaxAttempts: r.cfg.Jobs.RetryMaxAttempt,
		Logger:      r.logger,
	})
	if err := retry.Start(r.ctx); err != nil {
		r.logger.Warn("embedding retry job disabled", "error", err)
		return
	}
	r.mu.Lock()
	r.retry = retry
	r.mu.Unlock()
}

// ScheduleRecoveryScan starts the pending-file recovery scan in the
// background. Only the first call schedules anything.
func (r *Runtime) ScheduleRecoveryScan() bool {
	if !r.scanScheduled.CompareAndSwap(false, true) {
		return false
	}
	r.startupScanInProgress.Store(true)
	r.advance(StateScanScheduled)

	r.Go("recovery-scan", func(ctx context.Context) {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("recovery scan panicked", "panic", fmt.Sprint(p))
			}
			r.startupScanInProgress.Store(false)
			r.advance(StateReady)
		}()
		r.advance(StateScanRunning)

		res, err := r.recovery.RecoverAllPending(ctx, r.cfg.BasePath)
		if res != nil {
			r.lastRecovery.Store(res)
			r.metrics.RecordRecovery(ctx, res.Recovered, res.Failed)
		}
		if err != nil && !isCanceled(err) {
			r.logger.Warn("recovery scan failed", "error", err)
		}
	})
	return true
}
