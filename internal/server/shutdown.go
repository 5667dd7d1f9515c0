package server

import "fmt"

// Shutdown reasons.
const (
	ReasonSIGTERM        = "SIGTERM"
	ReasonSIGINT         = "SIGINT"
	ReasonPanic          = "panic"
	ReasonStartupFailed  = "startup failed"
	ReasonTransportEnded = "transport closed"
)

func exitCodeFor(reason string) int {
	switch reason {
	case ReasonPanic, ReasonStartupFailed:
		return 1
	}
	return 0
}

type teardownStep struct {
	name string
	run  func() error
}

// Shutdown tears everything down once and exits. Later and concurrent
// calls return false immediately.
func (r *Runtime) Shutdown(reason string) bool {
	if !r.shuttingDown.CompareAndSwap(false, true) {
		return false
	}
	r.logger.Info("shutting down", "reason", reason)

	for _, step := range r.teardownSteps() {
		r.runStep(step)
	}
	r.cancel()
	close(r.done)
	r.logger.Info("shutdown complete", "reason", reason)
	r.exit(exitCodeFor(reason))
	return true
}

func (r *Runtime) teardownSteps() []teardownStep {
	r.mu.RLock()
	archival, retry, transport := r.archival, r.retry, r.transport
	r.mu.RUnlock()

	return []teardownStep{
		{"storage", r.closeStorage},
		{"archival job", func() error {
			if archival != nil {
				archival.Cleanup()
			}
			return nil
		}},
		{"retry job", func() error {
			if retry != nil {
				retry.Stop()
			}
			return nil
		}},
		{"tool cache", func() error {
			r.toolCache.Shutdown()
			return nil
		}},
		{"transport", func() error {
			if transport == nil {
				return nil
			}
			return transport.Close()
		}},
	}
}

// runStep runs one teardown step; a failure never stops the next step.
func (r *Runtime) runStep(step teardownStep) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("shutdown step panicked", "step", step.name, "panic", fmt.Sprint(p))
		}
	}()
	if err := step.run(); err != nil {
		r.logger.Error("shutdown step failed", "step", step.name, "error", err)
	}
}

func (r *Runtime) closeStorage() error {
	if err := r.sessions.Shutdown(); err != nil {
		r.logger.Warn("end session failed", "error", err)
	}
	r.mu.Lock()
	closeFn := r.closeStore
	r.store, r.indexer, r.closeStore = nil, nil, nil
	r.mu.Unlock()
	if closeFn == nil {
		return nil
	}
	return closeFn()
}
