package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/HendryAvila/recall/internal/toolerr"
)

// MemoryGlob matches memory files relative to the base path.
const MemoryGlob = "**/memory/**/*.md"

// Store is the slice of memory.Store the indexer writes to.
type Store interface {
	Save(p memory.SaveParams) (*memory.SaveResult, error)
	SetMeta(key, value string) error
}

// Config holds the dependencies of an Indexer.
type Config struct {
	Store    Store
	BasePath string
	Workers  int
	Logger   *slog.Logger
}

// Indexer reads memory files from disk and upserts them into the store.
type Indexer struct {
	store    Store
	basePath string
	workers  int
	logger   *slog.Logger
}

// New creates an Indexer.
func New(cfg Config) *Indexer {
	workers := cfg.Workers
	if workers <= 0 {
		workers = min(runtime.NumCPU(), 8)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		base = cfg.BasePath
	}
	return &Indexer{store: cfg.Store, basePath: base, workers: workers, logger: logger}
}

// BasePath returns the absolute workspace root.
func (ix *Indexer) BasePath() string { return ix.basePath }

// Resolve turns a caller-supplied path into an absolute path inside the
// base path. Relative paths are taken relative to the base path.
func (ix *Indexer) Resolve(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("indexer: file path is required: %w", toolerr.ErrInvalidInput)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(ix.basePath, p)
	}
	p = filepath.Clean(p)
	if _, ok := relSlash(p, ix.basePath); !ok {
		return "", fmt.Errorf("indexer: %s is outside %s: %w", p, ix.basePath, toolerr.ErrInvalidInput)
	}
	if !strings.EqualFold(filepath.Ext(p), ".md") {
		return "", fmt.Errorf("indexer: %s is not a markdown file: %w", p, toolerr.ErrInvalidInput)
	}
	return p, nil
}

// ParseFile reads and parses one memory file.
func (ix *Indexer) ParseFile(filePath string) (*Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("indexer: %s: %w", filePath, toolerr.ErrNotFound)
		}
		return nil, fmt.Errorf("indexer: read %s: %w", filePath, err)
	}
	return Parse(filePath, data, ix.basePath)
}

// IndexFile parses a memory file and upserts it. An unchanged file is left
// alone unless force is set.
func (ix *Indexer) IndexFile(ctx context.Context, filePath string, force bool) (*Document, *memory.SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	abs, err := ix.Resolve(filePath)
	if err != nil {
		return nil, nil, err
	}
	doc, err := ix.ParseFile(abs)
	if err != nil {
		return nil, nil, err
	}
	res, err := ix.store.Save(doc.SaveParams(force))
	if err != nil {
		return doc, nil, fmt.Errorf("indexer: save %s: %w", abs, err)
	}
	return doc, res, nil
}

// FileError is a file the scan could not index.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ScanResult summarizes an index scan.
type ScanResult struct {
	Scanned   int           `json:"scanned"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Failed    int           `json:"failed"`
	Errors    []FileError   `json:"errors,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// Scan indexes every memory file under the base path, or under one spec
// folder. Files are read and parsed concurrently; writes are sequential.
func (ix *Indexer) Scan(ctx context.Context, specFolder string, force bool) (*ScanResult, error) {
	start := time.Now()
	files, err := ix.Discover(specFolder)
	if err != nil {
		return nil, err
	}

	docs := make([]*Document, len(files))
	parseErrs := make([]error, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docs[i], parseErrs[i] = ix.ParseFile(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("indexer: scan: %w", err)
	}

	res := &ScanResult{Scanned: len(files)}
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if parseErrs[i] != nil {
			res.fail(files[i], parseErrs[i])
			continue
		}
		saved, err := ix.store.Save(doc.SaveParams(force))
		if err != nil {
			res.fail(files[i], err)
			continue
		}
		switch saved.Status {
		case memory.SaveCreated:
			res.Created++
		case memory.SaveUpdated:
			res.Updated++
		default:
			res.Unchanged++
		}
	}

	if err := ix.store.SetMeta(memory.MetaLastIndexedAt, memory.Now()); err != nil {
		ix.logger.Warn("index scan: could not record timestamp", "error", err)
	}
	res.Duration = time.Since(start)
	ix.logger.Info("index scan complete",
		"spec_folder", specFolder,
		"scanned", res.Scanned,
		"created", res.Created,
		"updated", res.Updated,
		"failed", res.Failed,
	)
	return res, nil
}

func (r *ScanResult) fail(file string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, FileError{Path: file, Error: err.Error()})
}

// Discover lists memory files under the base path, optionally limited to a
// spec folder, in lexical order.
func (ix *Indexer) Discover(specFolder string) ([]string, error) {
	root := ix.basePath
	if specFolder != "" {
		clean := path.Clean(filepath.ToSlash(specFolder))
		if clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
			return nil, fmt.Errorf("indexer: spec folder %q escapes the base path: %w", specFolder, toolerr.ErrInvalidInput)
		}
		root = filepath.Join(ix.basePath, filepath.FromSlash(clean))
	}
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("indexer: %w", err)
	}

	matches, err := doublestar.Glob(os.DirFS(root), MemoryGlob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("indexer: glob: %w", err)
	}
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.HasSuffix(m, "_pending.md") {
			continue
		}
		files = append(files, filepath.Join(root, filepath.FromSlash(m)))
	}
	sort.Strings(files)
	return files, nil
}
