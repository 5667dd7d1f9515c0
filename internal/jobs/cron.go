// Package jobs runs recall's periodic background work on robfig/cron:
// archiving stale memories and retrying embeddings that are still pending.
package jobs

import (
	"fmt"
	"log/slog"

	cronlib "github.com/robfig/cron/v3"
)

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}

// newCron builds a scheduler that recovers job panics and never overlaps two
// runs of the same job.
func newCron(logger *slog.Logger) *cronlib.Cron {
	cl := cronLogger{logger: logger}
	return cronlib.New(
		cronlib.WithLogger(cl),
		cronlib.WithChain(cronlib.Recover(cl), cronlib.SkipIfStillRunning(cl)),
	)
}

// ValidateSchedule reports whether spec is a standard cron expression or a
// descriptor such as "@every 5m".
func ValidateSchedule(spec string) error {
	if _, err := cronlib.ParseStandard(spec); err != nil {
		return fmt.Errorf("jobs: invalid schedule %q: %w", spec, err)
	}
	return nil
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
