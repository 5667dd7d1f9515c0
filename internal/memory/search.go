package memory

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ─── Search (FTS5 + vector re-rank) ──────────────────────────────────────────

// Search performs full-text search over memories. Without a query, concepts
// are matched together; with neither, the most recent memories are returned.
// When opts.QueryVector is set, lexical candidates are re-ranked by blending
// their FTS position with cosine similarity.
func (s *Store) Search(opts SearchOptions) ([]SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > s.cfg.MaxSearchResults {
		limit = s.cfg.MaxSearchResults
	}

	ftsQuery := sanitizeFTS(opts.Query)
	if ftsQuery == "" && len(opts.Concepts) > 0 {
		ftsQuery = sanitizeFTS(strings.Join(opts.Concepts, " "))
	}
	if ftsQuery == "" {
		return s.searchRecent(opts, limit)
	}

	candidates := limit
	if len(opts.QueryVector) > 0 {
		candidates = limit * 3
	}

	sqlStr := `
		SELECT ` + prefixed("m.", memoryColumns) + `, fts.rank
		FROM memories_fts fts
		JOIN memories m ON m.id = fts.rowid
		WHERE memories_fts MATCH ? AND m.archived_at IS NULL
	`
	args := []any{ftsQuery}
	if opts.SpecFolder != "" {
		sqlStr += " AND m.spec_folder = ?"
		args = append(args, opts.SpecFolder)
	}
	if opts.Tier != "" {
		sqlStr += " AND m.importance_tier = ?"
		args = append(args, opts.Tier)
	}
	sqlStr += " ORDER BY fts.rank LIMIT ?"
	args = append(args, candidates)

	rows, err := s.queryHook(s.db, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var sr SearchResult
		m, err := scanMemory(rows, &sr.Rank)
		if err != nil {
			return nil, err
		}
		sr.Memory = m
		results = append(results, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	n := float64(len(results))
	for i := range results {
		lexical := 1 - float64(i)/n
		results[i].Score = lexical * (0.75 + 0.25*results[i].ImportanceWeight)
	}

	if len(opts.QueryVector) > 0 && len(results) > 0 {
		if err := s.rerank(results, opts.QueryVector); err != nil {
			return nil, err
		}
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Store) rerank(results []SearchResult, query []float32) error {
	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	vectors, err := s.vectors(ids)
	if err != nil {
		return err
	}
	for i := range results {
		v, ok := vectors[results[i].ID]
		if !ok {
			continue
		}
		sim := Cosine(query, v)
		results[i].Similarity = sim
		results[i].Score = 0.6*results[i].Score + 0.4*max(sim, 0)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return nil
}

// searchRecent returns the most recent memories without FTS, used as
// fallback when there is nothing to match.
func (s *Store) searchRecent(opts SearchOptions, limit int) ([]SearchResult, error) {
	list, _, err := s.List(ListOptions{
		SpecFolder: opts.SpecFolder,
		Tier:       opts.Tier,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: search recent: %w", err)
	}
	results := make([]SearchResult, len(list))
	for i, m := range list {
		results[i] = SearchResult{Memory: m}
	}
	return results, nil
}

// ─── Trigger matching ────────────────────────────────────────────────────────

// MatchTriggers returns memories with at least one trigger phrase occurring
// in prompt as whole words, case-insensitively. Results are ordered by the
// number of matched phrases, then tier priority.
func (s *Store) MatchTriggers(prompt, specFolder string, limit int) ([]TriggerMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	normPrompt := " " + normalizeForMatch(prompt) + " "
	if strings.TrimSpace(normPrompt) == "" {
		return nil, nil
	}

	q := `SELECT ` + memoryColumns + ` FROM memories
	      WHERE archived_at IS NULL AND trigger_phrases <> '[]'`
	var args []any
	if specFolder != "" {
		q += " AND spec_folder = ?"
		args = append(args, specFolder)
	}
	candidates, err := s.queryMemories(q, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: match triggers: %w", err)
	}

	var matches []TriggerMatch
	for _, m := range candidates {
		var hit []string
		for _, phrase := range m.TriggerPhrases {
			p := normalizeForMatch(phrase)
			if p != "" && strings.Contains(normPrompt, " "+p+" ") {
				hit = append(hit, phrase)
			}
		}
		if len(hit) > 0 {
			m.Content = ""
			matches = append(matches, TriggerMatch{Memory: m, MatchedPhrases: hit})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if len(a.MatchedPhrases) != len(b.MatchedPhrases) {
			return len(a.MatchedPhrases) > len(b.MatchedPhrases)
		}
		if tierPriority[a.ImportanceTier] != tierPriority[b.ImportanceTier] {
			return tierPriority[a.ImportanceTier] < tierPriority[b.ImportanceTier]
		}
		return a.ID < b.ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

func normalizeForMatch(s string) string {
	return strings.Join(strings.Fields(nonWord.ReplaceAllString(strings.ToLower(s), " ")), " ")
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
