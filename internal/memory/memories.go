package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const memoryColumns = `id, spec_folder, file_path, title, content, trigger_phrases,
	importance_tier, importance_weight, context_type, content_hash, confidence,
	validation_count, access_count, embedding_status, created_at, updated_at,
	last_accessed_at, archived_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(sc scanner, extra ...any) (Memory, error) {
	var m Memory
	var phrases string
	dest := []any{
		&m.ID, &m.SpecFolder, &m.FilePath, &m.Title, &m.Content, &phrases,
		&m.ImportanceTier, &m.ImportanceWeight, &m.ContextType, &m.ContentHash, &m.Confidence,
		&m.ValidationCount, &m.AccessCount, &m.EmbeddingStatus, &m.CreatedAt, &m.UpdatedAt,
		&m.LastAccessedAt, &m.ArchivedAt,
	}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return m, err
	}
	m.TriggerPhrases = decodeStrings(phrases)
	return m, nil
}

func (s *Store) queryMemories(query string, args ...any) ([]Memory, error) {
	rows, err := s.queryHook(s.db, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ─── Save ────────────────────────────────────────────────────────────────────

// Save creates a memory, or re-indexes the one already stored for the same
// file path. A non-empty ContentHash equal to the stored one leaves the row
// untouched unless Force is set. Any write resets the embedding to pending.
func (s *Store) Save(p SaveParams) (*SaveResult, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, fmt.Errorf("memory: title is required: %w", ErrConflict)
	}
	content := p.Content
	if len(content) > s.cfg.MaxContentLength {
		content = Truncate(content, s.cfg.MaxContentLength) + " [truncated]"
	}
	tier := normalizeTier(p.ImportanceTier)
	weight := p.ImportanceWeight
	if weight <= 0 {
		weight = defaultWeight(tier)
	}
	weight = clamp(weight, 0, 1)
	ctxType := strings.TrimSpace(p.ContextType)
	if ctxType == "" {
		ctxType = "general"
	}
	phrases := encodeStrings(cleanPhrases(p.TriggerPhrases))

	if p.FilePath != "" {
		var id int64
		var hash string
		err := s.db.QueryRow(
			`SELECT id, content_hash FROM memories WHERE file_path = ?`, p.FilePath,
		).Scan(&id, &hash)
		switch {
		case err == nil:
			if !p.Force && p.ContentHash != "" && hash == p.ContentHash {
				return &SaveResult{ID: id, Status: SaveUnchanged}, nil
			}
			if _, err := s.execHook(s.db,
				`UPDATE memories
				 SET spec_folder = ?, title = ?, content = ?, trigger_phrases = ?,
				     importance_tier = ?, importance_weight = ?, context_type = ?,
				     content_hash = ?, embedding_status = 'pending', embedding_attempts = 0,
				     embedding = NULL, embedding_model = NULL, embedding_dim = NULL,
				     archived_at = NULL, updated_at = datetime('now')
				 WHERE id = ?`,
				p.SpecFolder, title, content, phrases, tier, weight, ctxType, p.ContentHash, id,
			); err != nil {
				return nil, fmt.Errorf("memory: update %d: %w", id, err)
			}
			return &SaveResult{ID: id, Status: SaveUpdated}, nil
		case errors.Is(err, sql.ErrNoRows):
		default:
			return nil, fmt.Errorf("memory: lookup %s: %w", p.FilePath, err)
		}
	}

	res, err := s.execHook(s.db,
		`INSERT INTO memories (spec_folder, file_path, title, content, trigger_phrases,
		                       importance_tier, importance_weight, context_type, content_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.SpecFolder, p.FilePath, title, content, phrases, tier, weight, ctxType, p.ContentHash,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &SaveResult{ID: id, Status: SaveCreated}, nil
}

// ─── Read ────────────────────────────────────────────────────────────────────

// Get retrieves a single memory by ID.
func (s *Store) Get(id int64) (*Memory, error) {
	row := s.db.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("memory %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetByPath retrieves the memory indexed from filePath.
func (s *Store) GetByPath(filePath string) (*Memory, error) {
	row := s.db.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE file_path = ?`, filePath)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("memory %s: %w", filePath, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// List returns one page of memories and the total matching the filters.
func (s *Store) List(opts ListOptions) ([]Memory, int, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	where := " WHERE 1=1"
	var args []any
	if !opts.IncludeArchived {
		where += " AND archived_at IS NULL"
	}
	if opts.SpecFolder != "" {
		where += " AND spec_folder = ?"
		args = append(args, opts.SpecFolder)
	}
	if opts.Tier != "" {
		where += " AND importance_tier = ?"
		args = append(args, opts.Tier)
	}

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM memories`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("memory: count: %w", err)
	}

	order := " ORDER BY datetime(created_at) DESC, id DESC"
	switch opts.SortBy {
	case "updated_at":
		order = " ORDER BY datetime(updated_at) DESC, id DESC"
	case "importance":
		order = " ORDER BY importance_weight DESC, id DESC"
	}

	list, err := s.queryMemories(`SELECT `+memoryColumns+` FROM memories`+where+order+` LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("memory: list: %w", err)
	}
	return list, total, nil
}

// Constitutional returns the always-surfaced memories, highest weight first.
func (s *Store) Constitutional(limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.queryMemories(
		`SELECT `+memoryColumns+` FROM memories
		 WHERE importance_tier = ? AND archived_at IS NULL
		 ORDER BY importance_weight DESC, datetime(updated_at) DESC
		 LIMIT ?`,
		TierConstitutional, limit,
	)
}

// MarkAccessed bumps access counters for the given memories.
func (s *Store) MarkAccessed(ids ...int64) error {
	for _, id := range ids {
		if _, err := s.execHook(s.db,
			`UPDATE memories SET access_count = access_count + 1, last_accessed_at = datetime('now') WHERE id = ?`,
			id,
		); err != nil {
			return fmt.Errorf("memory: mark accessed %d: %w", id, err)
		}
	}
	return nil
}

// ─── Mutation ────────────────────────────────────────────────────────────────

// Update changes memory metadata. A title change requeues the embedding.
func (s *Store) Update(id int64, p UpdateParams) (*Memory, error) {
	m, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	title := m.Title
	phrases := m.TriggerPhrases
	tier := m.ImportanceTier
	weight := m.ImportanceWeight
	reembed := false

	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return nil, fmt.Errorf("memory: title cannot be empty: %w", ErrConflict)
		}
		reembed = t != title
		title = t
	}
	if p.TriggerPhrases != nil {
		phrases = cleanPhrases(*p.TriggerPhrases)
	}
	if p.ImportanceTier != nil {
		if !ValidTier(*p.ImportanceTier) {
			return nil, fmt.Errorf("memory: unknown tier %q: %w", *p.ImportanceTier, ErrConflict)
		}
		tier = *p.ImportanceTier
		if p.ImportanceWeight == nil {
			weight = defaultWeight(tier)
		}
	}
	if p.ImportanceWeight != nil {
		weight = clamp(*p.ImportanceWeight, 0, 1)
	}

	status := m.EmbeddingStatus
	if reembed {
		status = EmbeddingPending
	}

	if _, err := s.execHook(s.db,
		`UPDATE memories
		 SET title = ?, trigger_phrases = ?, importance_tier = ?, importance_weight = ?,
		     embedding_status = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		title, encodeStrings(phrases), tier, weight, status, id,
	); err != nil {
		return nil, fmt.Errorf("memory: update %d: %w", id, err)
	}
	return s.Get(id)
}

// Validate records usefulness feedback: useful memories gain confidence,
// unhelpful ones lose it. The score stays within [0, 1].
func (s *Store) Validate(id int64, useful bool) (*Memory, error) {
	delta := -0.1
	if useful {
		delta = 0.1
	}
	res, err := s.execHook(s.db,
		`UPDATE memories
		 SET confidence = MIN(1.0, MAX(0.0, confidence + ?)),
		     validation_count = validation_count + 1,
		     updated_at = datetime('now')
		 WHERE id = ?`,
		delta, id,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: validate %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("memory %d: %w", id, ErrNotFound)
	}
	return s.Get(id)
}

// Delete removes a memory and, through foreign keys, its causal edges.
func (s *Store) Delete(id int64) error {
	res, err := s.execHook(s.db, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("memory: delete %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteBySpecFolder removes every memory in a spec folder.
func (s *Store) DeleteBySpecFolder(folder string) (int64, error) {
	if folder == "" {
		return 0, fmt.Errorf("memory: spec folder is required: %w", ErrConflict)
	}
	res, err := s.execHook(s.db, `DELETE FROM memories WHERE spec_folder = ?`, folder)
	if err != nil {
		return 0, fmt.Errorf("memory: delete folder %s: %w", folder, err)
	}
	return res.RowsAffected()
}

// DeleteByPath removes the memory indexed from filePath. Missing rows are
// not an error.
func (s *Store) DeleteByPath(filePath string) error {
	_, err := s.execHook(s.db, `DELETE FROM memories WHERE file_path = ?`, filePath)
	return err
}

// ArchiveStale archives temporary and deprecated memories that have not been
// accessed or updated within olderThan. Archived memories drop out of search
// and listings but remain restorable by re-indexing their file.
func (s *Store) ArchiveStale(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format("2006-01-02 15:04:05")
	res, err := s.execHook(s.db,
		`UPDATE memories
		 SET archived_at = datetime('now')
		 WHERE archived_at IS NULL
		   AND importance_tier IN (?, ?)
		   AND datetime(COALESCE(last_accessed_at, updated_at)) < datetime(?)`,
		TierTemporary, TierDeprecated, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("memory: archive: %w", err)
	}
	return res.RowsAffected()
}
