package memory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
)

// snapshot is the JSON body of a checkpoint. Vectors are left out; restored
// memories are re-embedded by the retry job.
type snapshot struct {
	Memories []Memory     `json:"memories"`
	Edges    []CausalEdge `json:"edges"`
}

// CreateCheckpoint snapshots memories and their edges under a unique name.
// A non-empty specFolder limits the snapshot to that folder.
func (s *Store) CreateCheckpoint(name, specFolder string) (*Checkpoint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("memory: checkpoint name is required: %w", ErrConflict)
	}

	q := `SELECT ` + memoryColumns + ` FROM memories`
	var args []any
	if specFolder != "" {
		q += ` WHERE spec_folder = ?`
		args = append(args, specFolder)
	}
	mems, err := s.queryMemories(q+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: checkpoint read: %w", err)
	}

	edgeQ := `SELECT id, source_id, target_id, relation, strength, COALESCE(evidence, ''), created_at FROM causal_edges`
	if specFolder != "" {
		edgeQ += ` WHERE source_id IN (SELECT id FROM memories WHERE spec_folder = ?)
		             AND target_id IN (SELECT id FROM memories WHERE spec_folder = ?)`
		args = []any{specFolder, specFolder}
	} else {
		args = nil
	}
	rows, err := s.queryHook(s.db, edgeQ+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: checkpoint edges: %w", err)
	}
	var edges []CausalEdge
	for rows.Next() {
		var e CausalEdge
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Relation, &e.Strength, &e.Evidence, &e.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		edges = append(edges, e)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(snapshot{Memories: mems, Edges: edges})
	if err != nil {
		return nil, fmt.Errorf("memory: encode checkpoint: %w", err)
	}

	id := ulid.Make().String()
	if _, err := s.execHook(s.db,
		`INSERT INTO checkpoints (id, name, spec_folder, memory_count, edge_count, snapshot) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, specFolder, len(mems), len(edges), string(body),
	); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("memory: checkpoint %q already exists: %w", name, ErrConflict)
		}
		return nil, fmt.Errorf("memory: save checkpoint: %w", err)
	}
	return s.checkpoint(name)
}

func (s *Store) checkpoint(name string) (*Checkpoint, error) {
	var c Checkpoint
	err := s.db.QueryRow(
		`SELECT id, name, spec_folder, memory_count, edge_count, created_at FROM checkpoints WHERE name = ?`, name,
	).Scan(&c.ID, &c.Name, &c.SpecFolder, &c.MemoryCount, &c.EdgeCount, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCheckpoints returns checkpoints newest first.
func (s *Store) ListCheckpoints(specFolder string, limit int) ([]Checkpoint, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, name, spec_folder, memory_count, edge_count, created_at FROM checkpoints`
	var args []any
	if specFolder != "" {
		q += ` WHERE spec_folder = ?`
		args = append(args, specFolder)
	}
	// ULIDs sort by creation time, which breaks created_at ties within a second.
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.queryHook(s.db, q, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: list checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Checkpoint
	for rows.Next() {
		var c Checkpoint
		if err := rows.Scan(&c.ID, &c.Name, &c.SpecFolder, &c.MemoryCount, &c.EdgeCount, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RestoreCheckpoint re-inserts the memories and edges of a checkpoint in one
// transaction, keeping their original IDs. Rows whose ID or file path already
// exists are skipped. With clearExisting, the checkpoint's scope (its spec
// folder, or everything) is emptied first.
func (s *Store) RestoreCheckpoint(name string, clearExisting bool) (*RestoreResult, error) {
	cp, err := s.checkpoint(name)
	if err != nil {
		return nil, err
	}
	var body string
	if err := s.db.QueryRow(`SELECT snapshot FROM checkpoints WHERE name = ?`, name).Scan(&body); err != nil {
		return nil, fmt.Errorf("memory: read checkpoint: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return nil, fmt.Errorf("memory: decode checkpoint %q: %w", name, err)
	}

	tx, err := s.beginTxHook()
	if err != nil {
		return nil, fmt.Errorf("memory: begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result := &RestoreResult{Checkpoint: *cp}
	if clearExisting {
		var res sql.Result
		if cp.SpecFolder != "" {
			res, err = s.execHook(tx, `DELETE FROM memories WHERE spec_folder = ?`, cp.SpecFolder)
		} else {
			res, err = s.execHook(tx, `DELETE FROM memories`)
		}
		if err != nil {
			return nil, fmt.Errorf("memory: clear before restore: %w", err)
		}
		result.Cleared, _ = res.RowsAffected()
	}

	for _, m := range snap.Memories {
		res, err := s.execHook(tx,
			`INSERT OR IGNORE INTO memories (id, spec_folder, file_path, title, content, trigger_phrases,
			     importance_tier, importance_weight, context_type, content_hash, confidence,
			     validation_count, access_count, embedding_status, created_at, updated_at,
			     last_accessed_at, archived_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.SpecFolder, m.FilePath, m.Title, m.Content, encodeStrings(m.TriggerPhrases),
			m.ImportanceTier, m.ImportanceWeight, m.ContextType, m.ContentHash, m.Confidence,
			m.ValidationCount, m.AccessCount, EmbeddingPending, m.CreatedAt, m.UpdatedAt,
			m.LastAccessedAt, m.ArchivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("memory: restore memory %d: %w", m.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			result.Skipped++
		} else {
			result.Restored++
		}
	}

	for _, e := range snap.Edges {
		res, err := s.execHook(tx,
			`INSERT OR IGNORE INTO causal_edges (id, source_id, target_id, relation, strength, evidence, created_at)
			 SELECT ?, ?, ?, ?, ?, ?, ?
			 WHERE EXISTS (SELECT 1 FROM memories WHERE id = ?)
			   AND EXISTS (SELECT 1 FROM memories WHERE id = ?)`,
			e.ID, e.SourceID, e.TargetID, e.Relation, e.Strength, nullableString(e.Evidence), e.CreatedAt,
			e.SourceID, e.TargetID,
		)
		if err != nil {
			return nil, fmt.Errorf("memory: restore edge %d: %w", e.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			result.EdgesRestored++
		}
	}

	if err := s.commitHook(tx); err != nil {
		return nil, fmt.Errorf("memory: commit restore: %w", err)
	}
	return result, nil
}

// DeleteCheckpoint removes a checkpoint by name.
func (s *Store) DeleteCheckpoint(name string) error {
	res, err := s.execHook(s.db, `DELETE FROM checkpoints WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("memory: delete checkpoint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("checkpoint %q: %w", name, ErrNotFound)
	}
	return nil
}
