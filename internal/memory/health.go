package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Metadata keys.
const (
	MetaSchemaVersion = "schema_version"
	MetaServerVersion = "server_version"
	MetaLastIndexedAt = "last_indexed_at"
)

// GetMeta returns a metadata value and whether it was set.
func (s *Store) GetMeta(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("memory: get meta %s: %w", key, err)
	}
	return v, true, nil
}

// SetMeta upserts a metadata value.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.execHook(s.db,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("memory: set meta %s: %w", key, err)
	}
	return nil
}

// IntegrityCheck runs SQLite's integrity check and fails unless it reports ok.
func (s *Store) IntegrityCheck() error {
	res, err := s.integrity()
	if err != nil {
		return err
	}
	if res != "ok" {
		return fmt.Errorf("memory: integrity check: %s", res)
	}
	return nil
}

func (s *Store) integrity() (string, error) {
	rows, err := s.queryHook(s.db, `PRAGMA integrity_check`)
	if err != nil {
		return "", fmt.Errorf("memory: integrity check: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return "", err
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "; "), rows.Err()
}

// Health reports database state for memory_health.
func (s *Store) Health() (*Health, error) {
	h := &Health{Path: s.path}

	res, err := s.integrity()
	if err != nil {
		h.Integrity = err.Error()
		return h, nil
	}
	h.Integrity = res
	h.DatabaseOK = res == "ok"

	if fi, err := os.Stat(s.path); err == nil {
		h.SizeBytes = fi.Size()
	}
	h.SchemaVersion, _, _ = s.GetMeta(MetaSchemaVersion)
	h.ServerVersion, _, _ = s.GetMeta(MetaServerVersion)

	_ = s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE archived_at IS NULL`).Scan(&h.Memories)
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE embedding_status IN (?, ?)`, EmbeddingPending, EmbeddingRetry).Scan(&h.PendingEmbeddings)
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE embedding_status = ?`, EmbeddingFailed).Scan(&h.FailedEmbeddings)
	return h, nil
}

// Stats returns aggregate memory statistics, optionally for one spec folder.
func (s *Store) Stats(specFolder string) (*Stats, error) {
	st := &Stats{ByTier: map[string]int{}, ByEmbedding: map[string]int{}, SpecFolders: []FolderCount{}}

	where := ` WHERE archived_at IS NULL`
	var args []any
	if specFolder != "" {
		where += ` AND spec_folder = ?`
		args = append(args, specFolder)
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM memories`+where, args...).Scan(&st.TotalMemories); err != nil {
		return nil, fmt.Errorf("memory: stats: %w", err)
	}
	archQ := `SELECT COUNT(*) FROM memories WHERE archived_at IS NOT NULL`
	if specFolder != "" {
		archQ += ` AND spec_folder = ?`
	}
	_ = s.db.QueryRow(archQ, args...).Scan(&st.Archived)

	groups := []struct {
		col string
		dst map[string]int
	}{
		{"importance_tier", st.ByTier},
		{"embedding_status", st.ByEmbedding},
	}
	for _, g := range groups {
		if err := s.countBy(g.col, where, args, g.dst); err != nil {
			return nil, err
		}
	}

	rows, err := s.queryHook(s.db,
		`SELECT spec_folder, COUNT(*) FROM memories`+where+` GROUP BY spec_folder ORDER BY COUNT(*) DESC, spec_folder`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: stats folders: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var fc FolderCount
		if err := rows.Scan(&fc.SpecFolder, &fc.Count); err != nil {
			return nil, err
		}
		st.SpecFolders = append(st.SpecFolders, fc)
	}

	st.LastIndexedAt, _, _ = s.GetMeta(MetaLastIndexedAt)
	return st, rows.Err()
}

func (s *Store) countBy(col, where string, args []any, dst map[string]int) error {
	rows, err := s.queryHook(s.db, `SELECT `+col+`, COUNT(*) FROM memories`+where+` GROUP BY `+col, args...)
	if err != nil {
		return fmt.Errorf("memory: stats by %s: %w", col, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return err
		}
		dst[k] = n
	}
	return rows.Err()
}
