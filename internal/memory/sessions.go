package memory

import (
	"database/sql"
	"errors"
	"fmt"
)

// CreateSession starts a new active session.
func (s *Store) CreateSession(id string) error {
	_, err := s.execHook(s.db,
		`INSERT INTO sessions (id, status) VALUES (?, ?)`, id, SessionActive,
	)
	if err != nil {
		return fmt.Errorf("memory: create session: %w", err)
	}
	return nil
}

// TouchSession records activity on a session.
func (s *Store) TouchSession(id string) error {
	_, err := s.execHook(s.db,
		`UPDATE sessions SET last_activity_at = datetime('now'), call_count = call_count + 1 WHERE id = ?`, id,
	)
	return err
}

// EndSession closes an active session with the given final status.
func (s *Store) EndSession(id, status string) error {
	_, err := s.execHook(s.db,
		`UPDATE sessions SET status = ?, ended_at = datetime('now') WHERE id = ? AND status = ?`,
		status, id, SessionActive,
	)
	if err != nil {
		return fmt.Errorf("memory: end session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(id string) (*Session, error) {
	var ss Session
	err := s.db.QueryRow(
		`SELECT id, status, started_at, last_activity_at, ended_at, call_count FROM sessions WHERE id = ?`, id,
	).Scan(&ss.ID, &ss.Status, &ss.StartedAt, &ss.LastActivityAt, &ss.EndedAt, &ss.CallCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &ss, nil
}

// SessionsByStatus lists sessions in a state, most recent activity first.
func (s *Store) SessionsByStatus(status string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.queryHook(s.db,
		`SELECT id, status, started_at, last_activity_at, ended_at, call_count
		 FROM sessions WHERE status = ?
		 ORDER BY datetime(last_activity_at) DESC LIMIT ?`,
		status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Session
	for rows.Next() {
		var ss Session
		if err := rows.Scan(&ss.ID, &ss.Status, &ss.StartedAt, &ss.LastActivityAt, &ss.EndedAt, &ss.CallCount); err != nil {
			return nil, err
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// InterruptActiveSessions marks every session still active, except keep, as
// interrupted. Sessions left active belong to processes that did not shut
// down cleanly.
func (s *Store) InterruptActiveSessions(keep string) (int64, error) {
	res, err := s.execHook(s.db,
		`UPDATE sessions SET status = ?, ended_at = last_activity_at WHERE status = ? AND id <> ?`,
		SessionInterrupted, SessionActive, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("memory: interrupt sessions: %w", err)
	}
	return res.RowsAffected()
}
