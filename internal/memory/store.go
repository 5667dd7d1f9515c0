// Package memory implements recall's persistent memory database.
//
// It uses SQLite (pure Go, modernc.org/sqlite) with FTS5 full-text search for
// memories indexed from spec folders, plus the tables that back causal
// links, checkpoints, learning records, sessions and server metadata.
// Embedding vectors live next to each memory and are filled in
// asynchronously; a memory is searchable lexically before it has one.
package memory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/HendryAvila/recall/internal/toolerr"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SchemaVersion is stamped into the metadata table on every open.
const SchemaVersion = "1"

// Sentinel errors. Both wrap toolerr sentinels so the request error boundary
// classifies them without importing this package.
var (
	ErrNotFound = fmt.Errorf("memory: %w", toolerr.ErrNotFound)
	ErrConflict = fmt.Errorf("memory: conflict: %w", toolerr.ErrInvalidInput)
)

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds memory store configuration.
type Config struct {
	DataDir          string
	MaxContentLength int
	MaxSearchResults int
}

// DefaultConfig returns the default configuration for the memory store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:          filepath.Join(home, ".recall"),
		MaxContentLength: 20000,
		MaxSearchResults: 20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = d.MaxContentLength
	}
	if c.MaxSearchResults <= 0 {
		c.MaxSearchResults = d.MaxSearchResults
	}
	return c
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the persistent memory engine backed by SQLite + FTS5.
type Store struct {
	db    *sql.DB
	cfg   Config
	path  string
	hooks storeHooks
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

// storeHooks are test seams around the few database calls whose failure
// paths are otherwise unreachable with a healthy SQLite file.
type storeHooks struct {
	exec    func(db execer, query string, args ...any) (sql.Result, error)
	query   func(db queryer, query string, args ...any) (*sql.Rows, error)
	beginTx func(db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func (s *Store) execHook(db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(db, query, args...)
	}
	return db.Exec(query, args...)
}

func (s *Store) queryHook(db queryer, query string, args ...any) (*sql.Rows, error) {
	if s.hooks.query != nil {
		return s.hooks.query(db, query, args...)
	}
	return db.Query(query, args...)
}

func (s *Store) beginTxHook() (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(s.db)
	}
	return s.db.Begin()
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// New creates a new Store with the given configuration.
// It creates the data directory if needed, opens SQLite with WAL mode,
// and runs migrations.
func New(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("memory: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "recall.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("memory: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg, path: dbPath}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("memory: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw connection for read-only diagnostics.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			spec_folder        TEXT    NOT NULL DEFAULT '',
			file_path          TEXT    NOT NULL DEFAULT '',
			title              TEXT    NOT NULL,
			content            TEXT    NOT NULL,
			trigger_phrases    TEXT    NOT NULL DEFAULT '[]',
			importance_tier    TEXT    NOT NULL DEFAULT 'normal',
			importance_weight  REAL    NOT NULL DEFAULT 0.5,
			context_type       TEXT    NOT NULL DEFAULT 'general',
			content_hash       TEXT    NOT NULL DEFAULT '',
			confidence         REAL    NOT NULL DEFAULT 0.5,
			validation_count   INTEGER NOT NULL DEFAULT 0,
			access_count       INTEGER NOT NULL DEFAULT 0,
			embedding_status   TEXT    NOT NULL DEFAULT 'pending',
			embedding_attempts INTEGER NOT NULL DEFAULT 0,
			embedding_model    TEXT,
			embedding_dim      INTEGER,
			embedding          BLOB,
			created_at         TEXT    NOT NULL DEFAULT (datetime('now')),
			updated_at         TEXT    NOT NULL DEFAULT (datetime('now')),
			last_accessed_at   TEXT,
			archived_at        TEXT
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_mem_file   ON memories(file_path) WHERE file_path <> '';
		CREATE INDEX IF NOT EXISTS idx_mem_folder        ON memories(spec_folder);
		CREATE INDEX IF NOT EXISTS idx_mem_tier          ON memories(importance_tier);
		CREATE INDEX IF NOT EXISTS idx_mem_embedding     ON memories(embedding_status);
		CREATE INDEX IF NOT EXISTS idx_mem_created       ON memories(created_at DESC);

		CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			title,
			content,
			trigger_phrases,
			spec_folder,
			content='memories',
			content_rowid='id'
		);

		CREATE TABLE IF NOT EXISTS causal_edges (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			source_id  INTEGER NOT NULL,
			target_id  INTEGER NOT NULL,
			relation   TEXT    NOT NULL,
			strength   REAL    NOT NULL DEFAULT 1.0,
			evidence   TEXT,
			created_at TEXT    NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (source_id) REFERENCES memories(id) ON DELETE CASCADE,
			FOREIGN KEY (target_id) REFERENCES memories(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_edge_source ON causal_edges(source_id);
		CREATE INDEX IF NOT EXISTS idx_edge_target ON causal_edges(target_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_edge_unique ON causal_edges(source_id, target_id, relation);

		CREATE TABLE IF NOT EXISTS checkpoints (
			id           TEXT    PRIMARY KEY,
			name         TEXT    NOT NULL UNIQUE,
			spec_folder  TEXT    NOT NULL DEFAULT '',
			memory_count INTEGER NOT NULL DEFAULT 0,
			edge_count   INTEGER NOT NULL DEFAULT 0,
			snapshot     TEXT    NOT NULL,
			created_at   TEXT    NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS learning_records (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			spec_folder       TEXT    NOT NULL,
			task_id           TEXT    NOT NULL,
			phase             TEXT    NOT NULL DEFAULT 'preflight',
			pre_knowledge     REAL    NOT NULL,
			pre_uncertainty   REAL    NOT NULL,
			pre_context       REAL    NOT NULL,
			knowledge_gaps    TEXT    NOT NULL DEFAULT '[]',
			post_knowledge    REAL,
			post_uncertainty  REAL,
			post_context      REAL,
			gaps_closed       TEXT    NOT NULL DEFAULT '[]',
			new_gaps          TEXT    NOT NULL DEFAULT '[]',
			learning_index    REAL,
			created_at        TEXT    NOT NULL DEFAULT (datetime('now')),
			completed_at      TEXT,
			UNIQUE (spec_folder, task_id)
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id               TEXT    PRIMARY KEY,
			status           TEXT    NOT NULL DEFAULT 'active',
			started_at       TEXT    NOT NULL DEFAULT (datetime('now')),
			last_activity_at TEXT    NOT NULL DEFAULT (datetime('now')),
			ended_at         TEXT,
			call_count       INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

		CREATE TABLE IF NOT EXISTS metadata (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`
	if _, err := s.execHook(s.db, schema); err != nil {
		return err
	}

	// FTS triggers (idempotent)
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='mem_fts_insert'",
	).Scan(&name)
	if err == sql.ErrNoRows {
		triggers := `
			CREATE TRIGGER mem_fts_insert AFTER INSERT ON memories BEGIN
				INSERT INTO memories_fts(rowid, title, content, trigger_phrases, spec_folder)
				VALUES (new.id, new.title, new.content, new.trigger_phrases, new.spec_folder);
			END;

			CREATE TRIGGER mem_fts_delete AFTER DELETE ON memories BEGIN
				INSERT INTO memories_fts(memories_fts, rowid, title, content, trigger_phrases, spec_folder)
				VALUES ('delete', old.id, old.title, old.content, old.trigger_phrases, old.spec_folder);
			END;

			CREATE TRIGGER mem_fts_update AFTER UPDATE OF title, content, trigger_phrases, spec_folder ON memories BEGIN
				INSERT INTO memories_fts(memories_fts, rowid, title, content, trigger_phrases, spec_folder)
				VALUES ('delete', old.id, old.title, old.content, old.trigger_phrases, old.spec_folder);
				INSERT INTO memories_fts(rowid, title, content, trigger_phrases, spec_folder)
				VALUES (new.id, new.title, new.content, new.trigger_phrases, new.spec_folder);
			END;
		`
		if _, err := s.execHook(s.db, triggers); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return s.SetMeta(MetaSchemaVersion, SchemaVersion)
}
