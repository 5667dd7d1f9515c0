// Package session tracks server process lifetimes in the memory database so
// a restarted server can tell which previous sessions ended abruptly.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/HendryAvila/recall/internal/memory"
)

// Store is the slice of memory.Store the manager needs.
type Store interface {
	CreateSession(id string) error
	TouchSession(id string) error
	EndSession(id, status string) error
	SessionsByStatus(status string, limit int) ([]memory.Session, error)
	InterruptActiveSessions(keep string) (int64, error)
}

// Manager owns the current session.
type Manager struct {
	enabled bool
	logger  *slog.Logger

	mu    sync.Mutex
	store Store
	id    string
}

// NewManager creates a manager. A disabled manager accepts every call and
// records nothing.
func NewManager(enabled bool, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{enabled: enabled, logger: logger}
}

// IsEnabled reports whether sessions are tracked.
func (m *Manager) IsEnabled() bool { return m.enabled }

// Init starts a new session backed by store.
func (m *Manager) Init(store Store) error {
	if !m.enabled {
		return nil
	}
	if store == nil {
		return errors.New("session: store is required")
	}
	id := uuid.NewString()
	if err := store.CreateSession(id); err != nil {
		return fmt.Errorf("session: init: %w", err)
	}
	m.mu.Lock()
	m.store, m.id = store, id
	m.mu.Unlock()
	m.logger.Info("session started", "session_id", id)
	return nil
}

// ID returns the current session id, or "" before Init.
func (m *Manager) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// ResetInterrupted marks every other session still flagged active as
// interrupted and returns how many there were.
func (m *Manager) ResetInterrupted() (int64, error) {
	store, id := m.current()
	if store == nil {
		return 0, nil
	}
	n, err := store.InterruptActiveSessions(id)
	if err != nil {
		return 0, fmt.Errorf("session: reset interrupted: %w", err)
	}
	if n > 0 {
		m.logger.Warn("previous sessions ended without shutdown", "count", n)
	}
	return n, nil
}

// ListInterrupted returns recently interrupted sessions.
func (m *Manager) ListInterrupted(limit int) ([]memory.Session, error) {
	store, _ := m.current()
	if store == nil {
		return nil, nil
	}
	return store.SessionsByStatus(memory.SessionInterrupted, limit)
}

// Touch records activity on the current session.
func (m *Manager) Touch() error {
	store, id := m.current()
	if store == nil {
		return nil
	}
	return store.TouchSession(id)
}

// Shutdown marks the current session completed. Later calls are no-ops.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	store, id := m.store, m.id
	m.store = nil
	m.mu.Unlock()
	if store == nil {
		return nil
	}
	if err := store.EndSession(id, memory.SessionCompleted); err != nil {
		return fmt.Errorf("session: shutdown: %w", err)
	}
	m.logger.Info("session completed", "session_id", id)
	return nil
}

func (m *Manager) current() (Store, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store, m.id
}
