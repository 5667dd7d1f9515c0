package server

import (
	"os"
	"os/signal"
	"syscall"
)

// WatchSignals shuts the runtime down on SIGTERM or SIGINT. The returned
// function stops watching.
func (r *Runtime) WatchSignals() (stop func()) {
	term := make(chan os.Signal, 1)
	signal.Notify(term, syscall.SIGTERM)
	intr := make(chan os.Signal, 1)
	signal.Notify(intr, os.Interrupt)

	quit := make(chan struct{})
	go func() {
		select {
		case <-term:
			r.Shutdown(ReasonSIGTERM)
		case <-intr:
			r.Shutdown(ReasonSIGINT)
		case <-quit:
		case <-r.done:
		}
	}()
	return func() {
		signal.Stop(term)
		signal.Stop(intr)
		close(quit)
	}
}
