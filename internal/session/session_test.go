package session

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/HendryAvila/recall/internal/memory"
)

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.New(memory.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func quietManager(enabled bool) *Manager {
	return NewManager(enabled, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestManager_Lifecycle(t *testing.T) {
	s := newTestStore(t)

	prev := quietManager(true)
	if err := prev.Init(s); err != nil {
		t.Fatal(err)
	}

	m := quietManager(true)
	if err := m.Init(s); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := uuid.Parse(m.ID()); err != nil {
		t.Errorf("session id %q is not a uuid: %v", m.ID(), err)
	}

	n, err := m.ResetInterrupted()
	if err != nil || n != 1 {
		t.Fatalf("ResetInterrupted = %d, %v", n, err)
	}
	list, err := m.ListInterrupted(10)
	if err != nil || len(list) != 1 || list[0].ID != prev.ID() {
		t.Errorf("ListInterrupted = %+v, %v", list, err)
	}

	if err := m.Touch(); err != nil {
		t.Fatal(err)
	}
	if err := m.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := m.Shutdown(); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}

	got, _ := s.GetSession(m.ID())
	if got.Status != memory.SessionCompleted || got.CallCount != 1 {
		t.Errorf("session = %+v", got)
	}
}

func TestManager_Disabled(t *testing.T) {
	s := newTestStore(t)
	m := quietManager(false)
	if m.IsEnabled() {
		t.Fatal("IsEnabled = true")
	}
	if err := m.Init(s); err != nil {
		t.Fatal(err)
	}
	if m.ID() != "" {
		t.Errorf("disabled manager created session %q", m.ID())
	}
	if n, err := m.ResetInterrupted(); n != 0 || err != nil {
		t.Errorf("ResetInterrupted = %d, %v", n, err)
	}
	if err := m.Touch(); err != nil {
		t.Error(err)
	}
	if err := m.Shutdown(); err != nil {
		t.Error(err)
	}
}

func TestManager_InitRequiresStore(t *testing.T) {
	if err := quietManager(true).Init(nil); err == nil {
		t.Error("nil store should fail")
	}
}
