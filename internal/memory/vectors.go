package memory

import (
	"fmt"
	"strings"
)

// PendingEmbeddings returns memories waiting for a vector: pending ones and
// retries that have not exhausted maxAttempts. Oldest first.
func (s *Store) PendingEmbeddings(limit, maxAttempts int) ([]EmbeddingJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.queryHook(s.db,
		`SELECT id, title, content, embedding_attempts FROM memories
		 WHERE archived_at IS NULL
		   AND embedding_status IN (?, ?)
		   AND embedding_attempts < ?
		 ORDER BY id ASC
		 LIMIT ?`,
		EmbeddingPending, EmbeddingRetry, maxAttempts, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: pending embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []EmbeddingJob
	for rows.Next() {
		var j EmbeddingJob
		var title, content string
		if err := rows.Scan(&j.ID, &title, &content, &j.Attempts); err != nil {
			return nil, err
		}
		j.Text = EmbeddingText(title, content)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// SetEmbedding stores the vector for a memory and marks it successful.
func (s *Store) SetEmbedding(id int64, model string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("memory: empty embedding for %d: %w", id, ErrConflict)
	}
	res, err := s.execHook(s.db,
		`UPDATE memories
		 SET embedding = ?, embedding_model = ?, embedding_dim = ?,
		     embedding_status = ?, embedding_attempts = embedding_attempts + 1
		 WHERE id = ?`,
		encodeVector(vec), model, len(vec), EmbeddingSuccess, id,
	)
	if err != nil {
		return fmt.Errorf("memory: set embedding %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkEmbeddingFailed records a failed attempt. The memory stays eligible for
// retry until maxAttempts attempts have been made, then it is marked failed.
func (s *Store) MarkEmbeddingFailed(id int64, maxAttempts int) error {
	_, err := s.execHook(s.db,
		`UPDATE memories
		 SET embedding_attempts = embedding_attempts + 1,
		     embedding_status = CASE WHEN embedding_attempts + 1 >= ? THEN ? ELSE ? END
		 WHERE id = ?`,
		maxAttempts, EmbeddingFailed, EmbeddingRetry, id,
	)
	if err != nil {
		return fmt.Errorf("memory: mark embedding failed %d: %w", id, err)
	}
	return nil
}

// Embedding returns the stored vector of a memory, or nil when it has none.
func (s *Store) Embedding(id int64) ([]float32, error) {
	v, err := s.vectors([]int64{id})
	if err != nil {
		return nil, err
	}
	return v[id], nil
}

func (s *Store) vectors(ids []int64) (map[int64][]float32, error) {
	out := make(map[int64][]float32, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.queryHook(s.db,
		`SELECT id, embedding FROM memories WHERE embedding IS NOT NULL AND id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: load vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		if v := decodeVector(blob); v != nil {
			out[id] = v
		}
	}
	return out, rows.Err()
}

// DimensionCheck requeues every stored vector whose dimension differs from
// dim, which happens after switching embedding models. It returns how many
// memories were requeued.
func (s *Store) DimensionCheck(dim int) (int64, error) {
	if dim <= 0 {
		return 0, nil
	}
	res, err := s.execHook(s.db,
		`UPDATE memories
		 SET embedding = NULL, embedding_model = NULL, embedding_dim = NULL,
		     embedding_status = ?, embedding_attempts = 0
		 WHERE embedding_dim IS NOT NULL AND embedding_dim <> ?`,
		EmbeddingPending, dim,
	)
	if err != nil {
		return 0, fmt.Errorf("memory: dimension check: %w", err)
	}
	return res.RowsAffected()
}
