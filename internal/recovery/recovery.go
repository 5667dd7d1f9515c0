// Package recovery finishes memory writes that were interrupted mid-flight.
//
// A writer that cannot update a memory file atomically first writes a
// pending sibling, "<name>.md.pending" or "<name>_pending.md", and renames it
// into place afterwards. A crash between the two steps leaves the pending
// file behind. On startup the recovery manager promotes every such file,
// keeping whichever of the pair is newer, and re-indexes the result.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/HendryAvila/recall/internal/indexer"
	"github.com/HendryAvila/recall/internal/memory"
)

// Pending file patterns, relative to the base path.
var pendingGlobs = []string{
	"**/memory/**/*.md.pending",
	"**/memory/**/*_pending.md",
}

// Reindexer re-indexes a recovered memory file.
type Reindexer interface {
	IndexFile(ctx context.Context, filePath string, force bool) (*indexer.Document, *memory.SaveResult, error)
}

// PendingRecoveryResult summarizes one recovery pass.
type PendingRecoveryResult struct {
	Found     int         `json:"found"`
	Processed int         `json:"processed"`
	Recovered int         `json:"recovered"`
	Failed    int         `json:"failed"`
	Errors    []FileError `json:"errors,omitempty"`
}

// FileError is a pending file that could not be recovered.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Metrics are cumulative counters across every pass.
type Metrics struct {
	Runs      int       `json:"runs"`
	Found     int       `json:"found"`
	Recovered int       `json:"recovered"`
	Failed    int       `json:"failed"`
	LastRunAt time.Time `json:"last_run_at"`
}

// Manager promotes pending files.
type Manager struct {
	reindex Reindexer
	logger  *slog.Logger

	mu      sync.Mutex
	metrics Metrics
}

// NewManager creates a recovery manager. reindex may be nil, in which case
// files are promoted but not re-indexed.
func NewManager(reindex Reindexer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{reindex: reindex, logger: logger}
}

// TargetOf returns the file a pending file should replace, or "" when the
// name is not a pending name.
func TargetOf(pending string) string {
	switch {
	case strings.HasSuffix(pending, ".md.pending"):
		return strings.TrimSuffix(pending, ".pending")
	case strings.HasSuffix(pending, "_pending.md"):
		return strings.TrimSuffix(pending, "_pending.md") + ".md"
	default:
		return ""
	}
}

// FindPending lists pending files below basePath.
func FindPending(basePath string) ([]string, error) {
	if _, err := os.Stat(basePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("recovery: %w", err)
	}
	fsys := os.DirFS(basePath)
	var out []string
	for _, pattern := range pendingGlobs {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("recovery: glob %s: %w", pattern, err)
		}
		for _, m := range matches {
			out = append(out, filepath.Join(basePath, filepath.FromSlash(m)))
		}
	}
	return out, nil
}

// RecoverAllPending promotes every pending file under basePath. Individual
// failures are counted and logged; only a failure to list files is
// returned as an error.
func (m *Manager) RecoverAllPending(ctx context.Context, basePath string) (*PendingRecoveryResult, error) {
	files, err := FindPending(basePath)
	if err != nil {
		return nil, err
	}
	res := &PendingRecoveryResult{Found: len(files)}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			m.record(res)
			return res, err
		}
		res.Processed++
		if err := m.recoverOne(ctx, f); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, FileError{Path: f, Error: err.Error()})
			m.logger.Warn("pending file recovery failed", "path", f, "error", err)
			continue
		}
		res.Recovered++
	}
	m.record(res)
	if res.Found > 0 {
		m.logger.Info("pending file recovery complete",
			"found", res.Found, "recovered", res.Recovered, "failed", res.Failed)
	}
	return res, nil
}

func (m *Manager) recoverOne(ctx context.Context, pending string) error {
	target := TargetOf(pending)
	if target == "" {
		return errors.New("not a pending file name")
	}
	pInfo, err := os.Stat(pending)
	if err != nil {
		return err
	}

	tInfo, err := os.Stat(target)
	switch {
	case err == nil && tInfo.ModTime().After(pInfo.ModTime()):
		// The rename already happened and the target was edited since.
		if err := os.Remove(pending); err != nil {
			return fmt.Errorf("remove stale pending file: %w", err)
		}
	case err == nil || errors.Is(err, fs.ErrNotExist):
		if err := os.Rename(pending, target); err != nil {
			return fmt.Errorf("promote pending file: %w", err)
		}
	default:
		return err
	}

	if m.reindex == nil {
		return nil
	}
	if _, _, err := m.reindex.IndexFile(ctx, target, true); err != nil {
		return fmt.Errorf("re-index %s: %w", target, err)
	}
	return nil
}

func (m *Manager) record(res *PendingRecoveryResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.Runs++
	m.metrics.Found += res.Found
	m.metrics.Recovered += res.Recovered
	m.metrics.Failed += res.Failed
	m.metrics.LastRunAt = time.Now()
}

// Metrics returns a copy of the cumulative counters.
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}
