// Package mock provides a test double for the embeddings.Provider interface.
//
//	p := &mock.Provider{EmbedResult: []float32{0.1, 0.2}, DimensionsValue: 2}
//	vec, _ := p.Embed(ctx, "hello world")
package mock

import (
	"context"
	"sync"

	"github.com/HendryAvila/recall/internal/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock implementation of embeddings.Provider. Configure the
// exported result fields before use; call records are read through the
// accessor methods.
type Provider struct {
	mu sync.Mutex

	EmbedResult     []float32
	EmbedErr        error
	EmbedBatchErr   error
	ValidateErr     error
	DimensionsValue int
	ModelIDValue    string
	WarmEagerly     bool

	embedCalls    []string
	validateCalls int
}

// Embed records the text and returns EmbedResult, EmbedErr.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.embedCalls = append(p.embedCalls, text)
	return p.EmbedResult, p.EmbedErr
}

// EmbedBatch records every text and returns one copy of EmbedResult each.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.embedCalls = append(p.embedCalls, texts...)
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = p.EmbedResult
	}
	return out, nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int { return p.DimensionsValue }

// ModelID returns ModelIDValue, or "mock" when unset.
func (p *Provider) ModelID() string {
	if p.ModelIDValue == "" {
		return "mock"
	}
	return p.ModelIDValue
}

// ValidateCredentials counts the call and returns ValidateErr.
func (p *Provider) ValidateCredentials(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validateCalls++
	return p.ValidateErr
}

// ShouldWarmEagerly returns WarmEagerly.
func (p *Provider) ShouldWarmEagerly() bool { return p.WarmEagerly }

// EmbedCalls returns a copy of every text passed to Embed or EmbedBatch.
func (p *Provider) EmbedCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.embedCalls...)
}

// ValidateCalls returns how many times ValidateCredentials ran.
func (p *Provider) ValidateCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.validateCalls
}
