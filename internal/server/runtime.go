package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/singleflight"

	"github.com/HendryAvila/recall/internal/cache"
	"github.com/HendryAvila/recall/internal/catalog"
	"github.com/HendryAvila/recall/internal/config"
	"github.com/HendryAvila/recall/internal/embeddings"
	"github.com/HendryAvila/recall/internal/hooks"
	"github.com/HendryAvila/recall/internal/indexer"
	"github.com/HendryAvila/recall/internal/memory"
	"github.com/HendryAvila/recall/internal/memtools"
	"github.com/HendryAvila/recall/internal/recovery"
	"github.com/HendryAvila/recall/internal/resources"
	"github.com/HendryAvila/recall/internal/session"
	"github.com/HendryAvila/recall/internal/telemetry"
	"github.com/HendryAvila/recall/internal/toolerr"
	"github.com/HendryAvila/recall/internal/updater"
)

// State is the startup progress of a Runtime. It only moves forward.
type State int32

const (
	StateCold State = iota
	StateStorageOpen
	StateModelWarm
	StateScanScheduled
	StateScanRunning
	StateReady
)

func (s State) String() string {
	switch s {
	case StateCold:
		return "COLD"
	case StateStorageOpen:
		return "STORAGE_OPEN"
	case StateModelWarm:
		return "MODEL_WARM"
	case StateScanScheduled:
		return "SCAN_SCHEDULED"
	case StateScanRunning:
		return "SCAN_RUNNING"
	case StateReady:
		return "READY"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var (
	errShuttingDown  = fmt.Errorf("server is shutting down: %w", toolerr.ErrStorage)
	errStorageClosed = fmt.Errorf("storage is closed: %w", toolerr.ErrStorage)
)

// Options configure a Runtime.
type Options struct {
	Config  config.Config
	Version string
	Logger  *slog.Logger
	// Metrics defaults to instruments on the global meter provider.
	Metrics *telemetry.Metrics
	// Embedder is optional. Without one search stays lexical and the retry
	// job is not started.
	Embedder embeddings.Provider

	// OpenStore replaces memory.New.
	OpenStore func(memory.Config) (*memory.Store, error)
	// CheckVersion replaces updater.CheckVersion.
	CheckVersion func(ctx context.Context, current string) *updater.UpdateResult
	// Exit replaces os.Exit.
	Exit func(code int)
}

type archivalJob interface {
	Init() error
	Start()
	IsRunning() bool
	Cleanup()
}

type retryJob interface {
	Start(ctx context.Context) error
	Stop()
}

type shutdowner interface {
	Shutdown()
}

// Runtime owns the process lifecycle: lazy storage, startup, the per-call
// pipeline and shutdown.
type Runtime struct {
	cfg          config.Config
	version      string
	logger       *slog.Logger
	metrics      *telemetry.Metrics
	embedder     embeddings.Provider
	openStore    func(memory.Config) (*memory.Store, error)
	checkVersion func(ctx context.Context, current string) *updater.UpdateResult
	exit         func(code int)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	state                 atomic.Int32
	storageReady          atomic.Bool
	modelReady            atomic.Bool
	scanScheduled         atomic.Bool
	startupScanInProgress atomic.Bool
	shuttingDown          atomic.Bool

	opening singleflight.Group

	mu         sync.RWMutex
	store      *memory.Store
	indexer    *indexer.Indexer
	closeStore func() error
	archival   archivalJob
	retry      retryJob
	transport  io.Closer

	cache     *cache.Cache[*mcp.CallToolResult]
	toolCache shutdowner
	sessions  *session.Manager
	recovery  *recovery.Manager
	tools     *memtools.Set
	notifier  *Notifier
	handler   *Handler
	mcp       *server.MCPServer

	lastRecovery atomic.Pointer[recovery.PendingRecoveryResult]
	update       atomic.Pointer[updater.UpdateResult]
}

// New wires every collaborator. Nothing is opened until Start or the first
// tool call.
func New(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		m, err := telemetry.NewMetrics(nil)
		if err != nil {
			return nil, fmt.Errorf("server: metrics: %w", err)
		}
		metrics = m
	}
	version := opts.Version
	if version == "" {
		version = Version
	}

	r := &Runtime{
		cfg:          opts.Config,
		version:      version,
		logger:       logger,
		metrics:      metrics,
		embedder:     opts.Embedder,
		openStore:    opts.OpenStore,
		checkVersion: opts.CheckVersion,
		exit:         opts.Exit,
		done:         make(chan struct{}),
	}
	if r.openStore == nil {
		r.openStore = memory.New
	}
	if r.checkVersion == nil {
		r.checkVersion = updater.CheckVersion
	}
	if r.exit == nil {
		r.exit = os.Exit
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.cache = cache.New[*mcp.CallToolResult](opts.Config.Cache.TTL, opts.Config.Cache.MaxSize)
	r.toolCache = r.cache
	r.sessions = session.NewManager(opts.Config.Sessions.Enabled, logger)
	r.recovery = recovery.NewManager(lazyIndexer{r}, logger)

	r.tools = memtools.NewSet(memtools.Deps{
		Backend:     r,
		Embedder:    opts.Embedder,
		Cache:       r.cache,
		Diagnostics: r.Diagnostics,
		Logger:      logger,
	})

	dispatcher := NewDispatcher(r.tools)
	if opts.Config.StrictArgs {
		if _, err := dispatcher.WithStrictSchemas(catalog.Descriptors()); err != nil {
			r.cache.Shutdown()
			return nil, err
		}
	}

	r.notifier = NewNotifier(logger)
	r.notifier.onFailure = metrics.RecordCallbackFailure
	r.notifier.Register(r.recordCall)
	r.notifier.Register(r.touchSession)

	r.handler = NewHandler(HandlerConfig{
		Dispatcher: dispatcher,
		Gate:       r.ensureStorage,
		Surfacer: hooks.NewSurfacer(hooks.SurfacerConfig{
			Source:              r.surfaceSource,
			ConstitutionalLimit: opts.Config.Search.ConstitutionalCap,
		}),
		Notifier: r.notifier,
		Metrics:  metrics,
		Logger:   logger,
	})
	r.mcp = newMCPServer(version, r.handler, resources.NewHandler(r.Diagnostics, r.stats))
	return r, nil
}

// Handler returns the per-call pipeline.
func (r *Runtime) Handler() *Handler { return r.handler }

// Notifier returns the after-call fan-out.
func (r *Runtime) Notifier() *Notifier { return r.notifier }

// MCPServer returns the protocol server with every tool registered.
func (r *Runtime) MCPServer() *server.MCPServer { return r.mcp }

// State returns the current startup state.
func (r *Runtime) State() State { return State(r.state.Load()) }

// Done is closed once shutdown has run.
func (r *Runtime) Done() <-chan struct{} { return r.done }

func (r *Runtime) advance(to State) {
	for {
		cur := r.state.Load()
		if cur >= int32(to) || r.state.CompareAndSwap(cur, int32(to)) {
			return
		}
	}
}

// ─── Storage ─────────────────────────────────────────────────────────────────

// ensureStorage opens storage on first use. Concurrent callers share one
// open attempt; a failed attempt is retried by the next caller.
func (r *Runtime) ensureStorage(ctx context.Context) error {
	if r.shuttingDown.Load() {
		return errShuttingDown
	}
	if r.storageReady.Load() {
		return nil
	}
	ch := r.opening.DoChan("storage", func() (any, error) {
		return nil, r.openStorage()
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) openStorage() error {
	if r.storageReady.Load() {
		return nil
	}
	store, err := r.openStore(memory.Config{
		DataDir:          r.cfg.DataDir,
		MaxContentLength: r.cfg.Search.MaxContentLength,
		MaxSearchResults: r.cfg.Search.MaxResults,
	})
	if err != nil {
		return fmt.Errorf("open storage: %w: %w", toolerr.ErrStorage, err)
	}
	if err := store.IntegrityCheck(); err != nil {
		_ = store.Close()
		return fmt.Errorf("open storage: %w: %w", toolerr.ErrStorage, err)
	}
	if r.embedder != nil {
		n, err := store.DimensionCheck(r.embedder.Dimensions())
		if err != nil {
			_ = store.Close()
			return fmt.Errorf("open storage: %w: %w", toolerr.ErrStorage, err)
		}
		if n > 0 {
			r.logger.Info("embedding dimension changed, vectors requeued", "count", n, "dimensions", r.embedder.Dimensions())
		}
	}

	ix := indexer.New(indexer.Config{Store: store, BasePath: r.cfg.BasePath, Logger: r.logger})
	r.mu.Lock()
	if r.shuttingDown.Load() {
		r.mu.Unlock()
		_ = store.Close()
		return errShuttingDown
	}
	r.store, r.indexer, r.closeStore = store, ix, store.Close
	r.mu.Unlock()

	r.storageReady.Store(true)
	r.advance(StateStorageOpen)
	r.logger.Info("storage open", "path", store.Path())
	return nil
}

// Store implements memtools.Backend.
func (r *Runtime) Store(ctx context.Context) (*memory.Store, error) {
	if err := r.ensureStorage(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.store == nil {
		return nil, errStorageClosed
	}
	return r.store, nil
}

// Indexer implements memtools.Backend.
func (r *Runtime) Indexer(ctx context.Context) (*indexer.Indexer, error) {
	if err := r.ensureStorage(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.indexer == nil {
		return nil, errStorageClosed
	}
	return r.indexer, nil
}

func (r *Runtime) stats(ctx context.Context) (*memory.Stats, error) {
	store, err := r.Store(ctx)
	if err != nil {
		return nil, err
	}
	return store.Stats("")
}

func (r *Runtime) surfaceSource(ctx context.Context) (hooks.Source, error) {
	return r.Store(ctx)
}

// lazyIndexer lets the recovery manager re-index through the lazily opened
// storage.
type lazyIndexer struct{ r *Runtime }

func (l lazyIndexer) IndexFile(ctx context.Context, filePath string, force bool) (*indexer.Document, *memory.SaveResult, error) {
	ix, err := l.r.Indexer(ctx)
	if err != nil {
		return nil, nil, err
	}
	return ix.IndexFile(ctx, filePath, force)
}

// ─── After-call subscribers ──────────────────────────────────────────────────

func (r *Runtime) recordCall(ctx context.Context, toolName, _ string, result *mcp.CallToolResult) error {
	r.metrics.RecordCall(ctx, toolName, toolerr.IsErrorResult(result), CallDuration(ctx))
	return nil
}

func (r *Runtime) touchSession(context.Context, string, string, *mcp.CallToolResult) error {
	if r.shuttingDown.Load() {
		return nil
	}
	return r.sessions.Touch()
}

// ─── Supervision and diagnostics ─────────────────────────────────────────────

// Go runs fn on a supervised goroutine. A panic is logged and shuts the
// process down.
func (r *Runtime) Go(name string, fn func(ctx context.Context)) {
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("background task panicked", "task", name, "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
				r.Shutdown(ReasonPanic)
			}
		}()
		fn(r.ctx)
	}()
}

// Diagnostics reports runtime state for memory_health.
func (r *Runtime) Diagnostics() map[string]any {
	d := map[string]any{
		"state":                    r.State().String(),
		"version":                  r.version,
		"storage_ready":            r.storageReady.Load(),
		"model_ready":              r.modelReady.Load(),
		"startup_scan_in_progress": r.startupScanInProgress.Load(),
		"after_call_subscribers":   r.notifier.Len(),
	}
	if r.sessions.IsEnabled() {
		d["session_id"] = r.sessions.ID()
	}
	r.mu.RLock()
	if r.archival != nil {
		d["archival_running"] = r.archival.IsRunning()
	}
	d["retry_job"] = r.retry != nil
	r.mu.RUnlock()

	hits, misses := r.cache.Stats()
	d["cache"] = map[string]any{"entries": r.cache.Len(), "hits": hits, "misses": misses}
	d["recovery"] = r.recovery.Metrics()
	if last := r.lastRecovery.Load(); last != nil {
		d["last_recovery"] = last
	}
	if u := r.update.Load(); u != nil && u.UpdateAvailable {
		d["update_available"] = u.LatestVersion
	}
	return d
}

// IsShuttingDown reports whether Shutdown has been called.
func (r *Runtime) IsShuttingDown() bool { return r.shuttingDown.Load() }

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
