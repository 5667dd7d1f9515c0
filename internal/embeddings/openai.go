package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/HendryAvila/recall/internal/toolerr"
)

// DefaultOpenAIModel is the default OpenAI embeddings model.
const DefaultOpenAIModel = oai.EmbeddingModelTextEmbedding3Small

var _ Provider = (*OpenAI)(nil)

// OpenAI implements Provider using the OpenAI embeddings API.
type OpenAI struct {
	client     oai.Client
	model      string
	dimensions int
}

type openAIConfig struct {
	baseURL    string
	timeout    time.Duration
	dimensions int
}

// Option is a functional option for OpenAI.
type Option func(*openAIConfig)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *openAIConfig) { c.timeout = d }
}

// WithDimensions asks text-embedding-3 models for shortened vectors.
func WithDimensions(n int) Option {
	return func(c *openAIConfig) { c.dimensions = n }
}

// NewOpenAI constructs an OpenAI provider. An empty model selects
// DefaultOpenAIModel.
func NewOpenAI(apiKey, model string, opts ...Option) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embeddings: openai: api key must not be empty")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	cfg := &openAIConfig{timeout: 30 * time.Second}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &OpenAI{
		client:     oai.NewClient(reqOpts...),
		model:      model,
		dimensions: cfg.dimensions,
	}, nil
}

func (p *OpenAI) params(input oai.EmbeddingNewParamsInputUnion) oai.EmbeddingNewParams {
	params := oai.EmbeddingNewParams{Model: p.model, Input: input}
	if p.dimensions > 0 && strings.Contains(p.model, "text-embedding-3") {
		params.Dimensions = param.NewOpt(int64(p.dimensions))
	}
	return params
}

// Embed implements Provider.
func (p *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, p.params(oai.EmbeddingNewParamsInputUnion{
		OfString: param.NewOpt(text),
	}))
	if err != nil {
		return nil, fmt.Errorf("embeddings: openai embed: %w: %w", toolerr.ErrEmbedding, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings: openai: empty response: %w", toolerr.ErrEmbedding)
	}
	return float64ToFloat32(resp.Data[0].Embedding), nil
}

// EmbedBatch implements Provider.
func (p *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.Embeddings.New(ctx, p.params(oai.EmbeddingNewParamsInputUnion{
		OfArrayOfStrings: texts,
	}))
	if err != nil {
		return nil, fmt.Errorf("embeddings: openai embed batch: %w: %w", toolerr.ErrEmbedding, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: openai: expected %d embeddings, got %d: %w", len(texts), len(resp.Data), toolerr.ErrEmbedding)
	}

	out := make([][]float32, len(texts))
	for _, e := range resp.Data {
		if int(e.Index) >= len(texts) {
			return nil, fmt.Errorf("embeddings: openai: unexpected index %d: %w", e.Index, toolerr.ErrEmbedding)
		}
		out[e.Index] = float64ToFloat32(e.Embedding)
	}
	return out, nil
}

// Dimensions implements Provider.
func (p *OpenAI) Dimensions() int {
	if p.dimensions > 0 && strings.Contains(p.model, "text-embedding-3") {
		return p.dimensions
	}
	return modelDimensions(p.model)
}

// ModelID implements Provider.
func (p *OpenAI) ModelID() string { return p.model }

// ValidateCredentials looks up the configured model, which fails fast on a
// bad key without spending tokens.
func (p *OpenAI) ValidateCredentials(ctx context.Context) error {
	if _, err := p.client.Models.Get(ctx, p.model); err != nil {
		return fmt.Errorf("embeddings: openai credentials: %w: %w", toolerr.ErrEmbedding, err)
	}
	return nil
}

// ShouldWarmEagerly implements Provider. Remote models have nothing to load.
func (p *OpenAI) ShouldWarmEagerly() bool { return false }

func modelDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "text-embedding-3-large"):
		return 3072
	default:
		return 1536
	}
}

func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
