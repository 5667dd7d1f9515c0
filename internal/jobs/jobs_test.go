package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/HendryAvila/recall/internal/embeddings/mock"
	"github.com/HendryAvila/recall/internal/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.New(memory.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestValidateSchedule(t *testing.T) {
	for _, ok := range []string{"@every 5m", "@hourly", "*/10 * * * *"} {
		if err := ValidateSchedule(ok); err != nil {
			t.Errorf("%q: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "every 5m", "* * *"} {
		if err := ValidateSchedule(bad); err == nil {
			t.Errorf("%q should be rejected", bad)
		}
	}
}

// ─── Archival ────────────────────────────────────────────────────────────────

type countingArchiver struct {
	calls chan time.Duration
	err   error
}

func (c *countingArchiver) ArchiveStale(d time.Duration) (int64, error) {
	c.calls <- d
	return 1, c.err
}

func TestArchival_Lifecycle(t *testing.T) {
	arch := &countingArchiver{calls: make(chan time.Duration, 16)}
	a := NewArchival(ArchivalConfig{Store: arch, Schedule: "@every 1s", Logger: discardLogger()})

	a.Start()
	if a.IsRunning() {
		t.Fatal("Start before Init should be a no-op")
	}
	if err := a.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	a.Start()
	a.Start()
	if !a.IsRunning() {
		t.Fatal("IsRunning = false after Start")
	}

	select {
	case d := <-arch.calls:
		if d != 90*24*time.Hour {
			t.Errorf("olderThan = %v, want default 90 days", d)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled run never fired")
	}

	a.Cleanup()
	a.Cleanup()
	if a.IsRunning() {
		t.Error("IsRunning = true after Cleanup")
	}
}

func TestArchival_InitErrors(t *testing.T) {
	if err := NewArchival(ArchivalConfig{Schedule: "@hourly"}).Init(); err == nil {
		t.Error("missing store should fail")
	}
	arch := &countingArchiver{calls: make(chan time.Duration, 1)}
	if err := NewArchival(ArchivalConfig{Store: arch, Schedule: "nope"}).Init(); err == nil {
		t.Error("bad schedule should fail")
	}
}

func TestArchival_RunOnceAgainstStore(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Save(memory.SaveParams{Title: "scratch", Content: "c", ImportanceTier: memory.TierTemporary}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DB().Exec(`UPDATE memories SET updated_at = datetime('now', '-2 days')`); err != nil {
		t.Fatal(err)
	}

	a := NewArchival(ArchivalConfig{Store: s, Schedule: "@daily", OlderThan: 24 * time.Hour, Logger: discardLogger()})
	n, err := a.RunOnce(context.Background())
	if err != nil || n != 1 {
		t.Errorf("RunOnce = %d, %v", n, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.RunOnce(ctx); err == nil {
		t.Error("cancelled run should fail")
	}
}

// ─── Retry ───────────────────────────────────────────────────────────────────

func TestRetry_RunOnceEmbedsPending(t *testing.T) {
	s := newTestStore(t)
	for _, title := range []string{"a", "b"} {
		if _, err := s.Save(memory.SaveParams{Title: title, Content: "body"}); err != nil {
			t.Fatal(err)
		}
	}
	p := &mock.Provider{EmbedResult: []float32{1, 0, 0}, ModelIDValue: "m1"}
	r := NewRetry(RetryConfig{Queue: s, Provider: p, Schedule: "@hourly", Logger: discardLogger()})

	res, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Attempted != 2 || res.Embedded != 2 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if calls := p.EmbedCalls(); len(calls) != 2 || calls[0] != "a\n\nbody" {
		t.Errorf("embed calls = %q", calls)
	}
	h, _ := s.Health()
	if h.PendingEmbeddings != 0 {
		t.Errorf("pending after retry = %d", h.PendingEmbeddings)
	}
}

func TestRetry_FailuresExhaustAttempts(t *testing.T) {
	s := newTestStore(t)
	res, err := s.Save(memory.SaveParams{Title: "x", Content: "y"})
	if err != nil {
		t.Fatal(err)
	}
	p := &mock.Provider{EmbedErr: errors.New("rate limited")}
	r := NewRetry(RetryConfig{Queue: s, Provider: p, Schedule: "@hourly", MaxAttempts: 2, Logger: discardLogger()})

	for i := 0; i < 3; i++ {
		if _, err := r.RunOnce(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(p.EmbedCalls()); n != 2 {
		t.Errorf("embed attempts = %d, want 2", n)
	}
	m, _ := s.Get(res.ID)
	if m.EmbeddingStatus != memory.EmbeddingFailed {
		t.Errorf("status = %s", m.EmbeddingStatus)
	}
}

func TestRetry_EmptyVectorCountsAsFailure(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Save(memory.SaveParams{Title: "x", Content: "y"}); err != nil {
		t.Fatal(err)
	}
	r := NewRetry(RetryConfig{Queue: s, Provider: &mock.Provider{}, Schedule: "@hourly", Logger: discardLogger()})
	res, _ := r.RunOnce(context.Background())
	if res.Failed != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestRetry_StartStop(t *testing.T) {
	s := newTestStore(t)
	r := NewRetry(RetryConfig{Queue: s, Provider: &mock.Provider{}, Schedule: "@every 1h", Logger: discardLogger()})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	r.Stop()
	r.Stop()

	if err := NewRetry(RetryConfig{Schedule: "@hourly"}).Start(context.Background()); err == nil {
		t.Error("missing queue should fail")
	}
	bad := NewRetry(RetryConfig{Queue: s, Provider: &mock.Provider{}, Schedule: "bogus"})
	if err := bad.Start(context.Background()); err == nil {
		t.Error("bad schedule should fail")
	}
}
