package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	cronlib "github.com/robfig/cron/v3"

	"github.com/HendryAvila/recall/internal/embeddings"
	"github.com/HendryAvila/recall/internal/memory"
)

// EmbeddingQueue is the slice of the store the retry job works on.
type EmbeddingQueue interface {
	PendingEmbeddings(limit, maxAttempts int) ([]memory.EmbeddingJob, error)
	SetEmbedding(id int64, model string, vec []float32) error
	MarkEmbeddingFailed(id int64, maxAttempts int) error
}

// RetryConfig holds the dependencies of the retry job.
type RetryConfig struct {
	Queue       EmbeddingQueue
	Provider    embeddings.Provider
	Schedule    string
	BatchSize   int
	MaxAttempts int
	Logger      *slog.Logger
}

// RetryResult reports one pass over the pending queue.
type RetryResult struct {
	Attempted int `json:"attempted"`
	Embedded  int `json:"embedded"`
	Failed    int `json:"failed"`
}

// Retry embeds memories whose vector is still pending or failed earlier.
type Retry struct {
	queue       EmbeddingQueue
	provider    embeddings.Provider
	schedule    string
	batch       int
	maxAttempts int
	logger      *slog.Logger

	mu     sync.Mutex
	cron   *cronlib.Cron
	cancel context.CancelFunc
}

// NewRetry creates a retry job.
func NewRetry(cfg RetryConfig) *Retry {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 20
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Retry{
		queue:       cfg.Queue,
		provider:    cfg.Provider,
		schedule:    cfg.Schedule,
		batch:       batch,
		maxAttempts: attempts,
		logger:      loggerOrDefault(cfg.Logger),
	}
}

// Start registers the job and begins its schedule. Runs receive a context
// derived from ctx that Stop cancels.
func (r *Retry) Start(ctx context.Context) error {
	if r.queue == nil || r.provider == nil {
		return errors.New("jobs: retry: queue and provider are required")
	}
	if err := ValidateSchedule(r.schedule); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := newCron(r.logger)
	if _, err := c.AddFunc(r.schedule, func() { _, _ = r.RunOnce(runCtx) }); err != nil {
		cancel()
		return err
	}
	r.cron, r.cancel = c, cancel
	c.Start()
	r.logger.Info("embedding retry job started", "schedule", r.schedule, "batch", r.batch)
	return nil
}

// RunOnce embeds one batch of pending memories. Individual failures are
// recorded against the memory and counted, not returned.
func (r *Retry) RunOnce(ctx context.Context) (RetryResult, error) {
	var res RetryResult
	jobs, err := r.queue.PendingEmbeddings(r.batch, r.maxAttempts)
	if err != nil {
		r.logger.Error("embedding retry: list pending failed", "error", err)
		return res, err
	}

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempted++
		vec, err := r.provider.Embed(ctx, job.Text)
		if err == nil && len(vec) == 0 {
			err = errors.New("provider returned an empty vector")
		}
		if err == nil {
			err = r.queue.SetEmbedding(job.ID, r.provider.ModelID(), vec)
		}
		if err != nil {
			res.Failed++
			r.logger.Warn("embedding retry failed", "memory_id", job.ID, "attempt", job.Attempts+1, "error", err)
			if markErr := r.queue.MarkEmbeddingFailed(job.ID, r.maxAttempts); markErr != nil {
				r.logger.Error("embedding retry: mark failed", "memory_id", job.ID, "error", markErr)
			}
			continue
		}
		res.Embedded++
	}
	if res.Attempted > 0 {
		r.logger.Info("embedding retry pass", "attempted", res.Attempted, "embedded", res.Embedded, "failed", res.Failed)
	}
	return res, nil
}

// Stop cancels in-flight runs and waits for them to exit. Safe to call more
// than once.
func (r *Retry) Stop() {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron, r.cancel = nil, nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	r.logger.Info("embedding retry job stopped")
}
