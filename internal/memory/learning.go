package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const learningColumns = `id, spec_folder, task_id, phase, pre_knowledge, pre_uncertainty, pre_context,
	knowledge_gaps, post_knowledge, post_uncertainty, post_context, gaps_closed, new_gaps,
	learning_index, created_at, completed_at`

func scanLearning(sc scanner) (LearningRecord, error) {
	var r LearningRecord
	var gaps, closed, discovered string
	err := sc.Scan(
		&r.ID, &r.SpecFolder, &r.TaskID, &r.Phase, &r.PreKnowledge, &r.PreUncertainty, &r.PreContext,
		&gaps, &r.PostKnowledge, &r.PostUncertainty, &r.PostContext, &closed, &discovered,
		&r.LearningIndex, &r.CreatedAt, &r.CompletedAt,
	)
	r.KnowledgeGaps = decodeStrings(gaps)
	r.GapsClosed = decodeStrings(closed)
	r.NewGaps = decodeStrings(discovered)
	return r, err
}

func validScore(name string, v float64) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("memory: %s must be between 0 and 100, got %v: %w", name, v, ErrConflict)
	}
	return nil
}

// LearningIndex weighs the three score deltas: knowledge gained, uncertainty
// reduced and context gained.
func LearningIndex(dKnowledge, dUncertaintyReduction, dContext float64) float64 {
	return 0.4*dKnowledge + 0.35*dUncertaintyReduction + 0.25*dContext
}

// InterpretLearningIndex labels a learning index for display.
func InterpretLearningIndex(li float64) string {
	switch {
	case li >= 40:
		return "significant learning"
	case li >= 15:
		return "moderate learning"
	case li >= 5:
		return "incremental learning"
	case li >= 0:
		return "minimal change"
	default:
		return "regression"
	}
}

// RecordPreflight stores the baseline scores of a task. Re-recording a task
// that has not completed replaces its baseline; a completed task is rejected.
func (s *Store) RecordPreflight(p PreflightParams) (*LearningRecord, error) {
	if strings.TrimSpace(p.SpecFolder) == "" || strings.TrimSpace(p.TaskID) == "" {
		return nil, fmt.Errorf("memory: spec folder and task id are required: %w", ErrConflict)
	}
	for name, v := range map[string]float64{"knowledgeScore": p.Knowledge, "uncertaintyScore": p.Uncertainty, "contextScore": p.Context} {
		if err := validScore(name, v); err != nil {
			return nil, err
		}
	}

	if existing, err := s.learningRecord(p.SpecFolder, p.TaskID); err == nil && existing.Phase == PhaseComplete {
		return nil, fmt.Errorf("memory: task %s/%s already completed: %w", p.SpecFolder, p.TaskID, ErrConflict)
	}

	if _, err := s.execHook(s.db,
		`INSERT INTO learning_records (spec_folder, task_id, phase, pre_knowledge, pre_uncertainty, pre_context, knowledge_gaps)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (spec_folder, task_id) DO UPDATE SET
		     pre_knowledge = excluded.pre_knowledge,
		     pre_uncertainty = excluded.pre_uncertainty,
		     pre_context = excluded.pre_context,
		     knowledge_gaps = excluded.knowledge_gaps,
		     created_at = datetime('now')`,
		p.SpecFolder, p.TaskID, PhasePreflight, p.Knowledge, p.Uncertainty, p.Context, encodeStrings(p.KnowledgeGaps),
	); err != nil {
		return nil, fmt.Errorf("memory: record preflight: %w", err)
	}
	return s.learningRecord(p.SpecFolder, p.TaskID)
}

// RecordPostflight completes a task's learning record and computes its
// learning index against the preflight baseline.
func (s *Store) RecordPostflight(p PostflightParams) (*LearningRecord, error) {
	for name, v := range map[string]float64{"knowledgeScore": p.Knowledge, "uncertaintyScore": p.Uncertainty, "contextScore": p.Context} {
		if err := validScore(name, v); err != nil {
			return nil, err
		}
	}
	pre, err := s.learningRecord(p.SpecFolder, p.TaskID)
	if err != nil {
		return nil, err
	}

	li := LearningIndex(p.Knowledge-pre.PreKnowledge, pre.PreUncertainty-p.Uncertainty, p.Context-pre.PreContext)
	if _, err := s.execHook(s.db,
		`UPDATE learning_records
		 SET phase = ?, post_knowledge = ?, post_uncertainty = ?, post_context = ?,
		     gaps_closed = ?, new_gaps = ?, learning_index = ?, completed_at = datetime('now')
		 WHERE id = ?`,
		PhaseComplete, p.Knowledge, p.Uncertainty, p.Context,
		encodeStrings(p.GapsClosed), encodeStrings(p.NewGaps), li, pre.ID,
	); err != nil {
		return nil, fmt.Errorf("memory: record postflight: %w", err)
	}
	return s.learningRecord(p.SpecFolder, p.TaskID)
}

func (s *Store) learningRecord(specFolder, taskID string) (*LearningRecord, error) {
	row := s.db.QueryRow(`SELECT `+learningColumns+` FROM learning_records WHERE spec_folder = ? AND task_id = ?`, specFolder, taskID)
	r, err := scanLearning(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no preflight for %s/%s: %w", specFolder, taskID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LearningHistory returns the newest learning records of a spec folder with
// averages over the completed ones.
func (s *Store) LearningHistory(specFolder string, limit int, onlyComplete bool) (*LearningHistory, error) {
	if limit <= 0 {
		limit = 10
	}
	q := `SELECT ` + learningColumns + ` FROM learning_records WHERE spec_folder = ?`
	args := []any{specFolder}
	if onlyComplete {
		q += ` AND phase = ?`
		args = append(args, PhaseComplete)
	}
	q += ` ORDER BY datetime(created_at) DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.queryHook(s.db, q, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: learning history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	h := &LearningHistory{SpecFolder: specFolder, Records: []LearningRecord{}}
	for rows.Next() {
		r, err := scanLearning(rows)
		if err != nil {
			return nil, err
		}
		h.Records = append(h.Records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var li, gain, reduction float64
	for _, r := range h.Records {
		h.Summary.Total++
		if r.Phase != PhaseComplete || r.LearningIndex == nil {
			continue
		}
		h.Summary.Completed++
		li += *r.LearningIndex
		gain += *r.PostKnowledge - r.PreKnowledge
		reduction += r.PreUncertainty - *r.PostUncertainty
	}
	if n := float64(h.Summary.Completed); n > 0 {
		h.Summary.AvgLearningIndex = li / n
		h.Summary.AvgKnowledgeGain = gain / n
		h.Summary.AvgUncertaintyReduction = reduction / n
	}
	return h, nil
}
