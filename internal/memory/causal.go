package memory

import (
	"fmt"
	"slices"
)

// ─── Causal edges ────────────────────────────────────────────────────────────

// LinkCausal creates a directed cause → effect edge between two memories.
func (s *Store) LinkCausal(p LinkParams) (*CausalEdge, error) {
	if p.SourceID == p.TargetID {
		return nil, fmt.Errorf("memory: cannot link memory %d to itself: %w", p.SourceID, ErrConflict)
	}
	if !slices.Contains(CausalRelations, p.Relation) {
		return nil, fmt.Errorf("memory: unknown relation %q: %w", p.Relation, ErrConflict)
	}
	strength := p.Strength
	if strength <= 0 {
		strength = 1
	}
	strength = clamp(strength, 0, 1)

	for _, id := range []int64{p.SourceID, p.TargetID} {
		if _, err := s.Get(id); err != nil {
			return nil, err
		}
	}

	res, err := s.execHook(s.db,
		`INSERT INTO causal_edges (source_id, target_id, relation, strength, evidence) VALUES (?, ?, ?, ?, ?)`,
		p.SourceID, p.TargetID, p.Relation, strength, nullableString(p.Evidence),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("memory: edge already exists: %d → %d (%s): %w", p.SourceID, p.TargetID, p.Relation, ErrConflict)
		}
		return nil, fmt.Errorf("memory: create edge: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.edge(id)
}

func (s *Store) edge(id int64) (*CausalEdge, error) {
	var e CausalEdge
	var evidence *string
	err := s.db.QueryRow(
		`SELECT id, source_id, target_id, relation, strength, evidence, created_at FROM causal_edges WHERE id = ?`, id,
	).Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Relation, &e.Strength, &evidence, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("edge %d: %w", id, ErrNotFound)
	}
	e.Evidence = derefString(evidence)
	return &e, nil
}

// UnlinkCausal deletes an edge by ID.
func (s *Store) UnlinkCausal(edgeID int64) error {
	res, err := s.execHook(s.db, `DELETE FROM causal_edges WHERE id = ?`, edgeID)
	if err != nil {
		return fmt.Errorf("memory: delete edge: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("edge %d: %w", edgeID, ErrNotFound)
	}
	return nil
}

// EdgesOf returns all edges touching a memory, oldest first.
func (s *Store) EdgesOf(memoryID int64) ([]CausalEdge, error) {
	rows, err := s.queryHook(s.db,
		`SELECT id, source_id, target_id, relation, strength, COALESCE(evidence, ''), created_at
		 FROM causal_edges
		 WHERE source_id = ? OR target_id = ?
		 ORDER BY created_at ASC, id ASC`,
		memoryID, memoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: query edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []CausalEdge
	for rows.Next() {
		var e CausalEdge
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Relation, &e.Strength, &e.Evidence, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DriftWhy walks the causal graph from a memory using BFS and returns the
// lightweight chain of connected memories. direction is "outgoing" (effects),
// "incoming" (causes) or "both". Default depth is 3, max is 5.
func (s *Store) DriftWhy(memoryID int64, maxDepth int, direction string) (*DriftResult, error) {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	if maxDepth > 5 {
		maxDepth = 5
	}
	switch direction {
	case "outgoing", "incoming":
	default:
		direction = "both"
	}

	root, err := s.Get(memoryID)
	if err != nil {
		return nil, err
	}

	type queueItem struct {
		id    int64
		depth int
	}
	visited := map[int64]bool{memoryID: true}
	queue := []queueItem{{id: memoryID}}
	chain := []ChainNode{}
	deepest := 0

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}

		edges, err := s.EdgesOf(cur.id)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			other, dir := e.TargetID, "outgoing"
			if e.TargetID == cur.id {
				other, dir = e.SourceID, "incoming"
			}
			if direction != "both" && dir != direction {
				continue
			}
			if visited[other] {
				continue
			}
			visited[other] = true

			m, err := s.Get(other)
			if err != nil {
				continue // removed between queries
			}
			depth := cur.depth + 1
			chain = append(chain, ChainNode{
				EdgeID:    e.ID,
				MemoryID:  m.ID,
				Title:     m.Title,
				Tier:      m.ImportanceTier,
				Relation:  e.Relation,
				Direction: dir,
				Strength:  e.Strength,
				Evidence:  e.Evidence,
				Depth:     depth,
			})
			deepest = max(deepest, depth)
			queue = append(queue, queueItem{id: other, depth: depth})
		}
	}

	return &DriftResult{
		Memory:     *root,
		Chain:      chain,
		TotalNodes: len(chain),
		MaxDepth:   deepest,
	}, nil
}

// CausalStats reports graph size and how much of the corpus it covers.
func (s *Store) CausalStats() (*CausalStats, error) {
	st := &CausalStats{ByRelation: map[string]int{}}

	var avg *float64
	if err := s.db.QueryRow(`SELECT COUNT(*), AVG(strength) FROM causal_edges`).Scan(&st.TotalEdges, &avg); err != nil {
		return nil, fmt.Errorf("memory: causal stats: %w", err)
	}
	if avg != nil {
		st.AvgStrength = *avg
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE archived_at IS NULL`).Scan(&st.TotalMemories); err != nil {
		return nil, fmt.Errorf("memory: causal stats: %w", err)
	}
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM (SELECT source_id AS id FROM causal_edges UNION SELECT target_id FROM causal_edges)`,
	).Scan(&st.LinkedMemories); err != nil {
		return nil, fmt.Errorf("memory: causal stats: %w", err)
	}
	if st.TotalMemories > 0 {
		st.Coverage = float64(st.LinkedMemories) / float64(st.TotalMemories)
	}

	rows, err := s.queryHook(s.db, `SELECT relation, COUNT(*) FROM causal_edges GROUP BY relation`)
	if err != nil {
		return nil, fmt.Errorf("memory: causal stats: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var rel string
		var n int
		if err := rows.Scan(&rel, &n); err != nil {
			return nil, err
		}
		st.ByRelation[rel] = n
	}
	return st, rows.Err()
}
