// Package embeddings defines the Provider interface for the vector backends
// that back semantic re-ranking, plus the two shipped implementations: an
// OpenAI provider and a local feature-hashing provider that needs no network.
//
// Implementations must be safe for concurrent use.
package embeddings

import (
	"context"
	"fmt"

	"github.com/HendryAvila/recall/internal/config"
)

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by one Provider share the same length, Dimensions().
// Vectors from different models must not be compared; the store requeues
// vectors whose dimension no longer matches the active provider.
type Provider interface {
	// Embed computes the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes one vector per text, in order. On error the whole
	// slice is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector.
	Dimensions() int

	// ModelID returns the model identifier stored next to each vector.
	ModelID() string

	// ValidateCredentials checks that the backend accepts our credentials.
	// Providers without credentials return nil.
	ValidateCredentials(ctx context.Context) error

	// ShouldWarmEagerly reports whether startup should embed a probe string
	// so the first real call does not pay the load cost.
	ShouldWarmEagerly() bool
}

// Provider names accepted by New.
const (
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
)

// New builds the provider selected by cfg.
func New(cfg config.EmbeddingsConfig) (Provider, error) {
	switch cfg.Provider {
	case "", ProviderLocal:
		return NewLocal(cfg.Dimensions), nil
	case ProviderOpenAI:
		var opts []Option
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.Dimensions > 0 {
			opts = append(opts, WithDimensions(cfg.Dimensions))
		}
		return NewOpenAI(cfg.APIKey, cfg.Model, opts...)
	default:
		return nil, fmt.Errorf("embeddings: unknown provider %q", cfg.Provider)
	}
}
