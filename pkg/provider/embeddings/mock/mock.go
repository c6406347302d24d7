// Package mock provides a test double for the embeddings.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/s4nfs/mediscribe/pkg/provider/embeddings"
)

// Provider is a mock embeddings.Provider. It returns Vector for every Embed
// call, or a deterministic default sized to Dim.
type Provider struct {
	mu sync.Mutex

	// Dim is the reported dimensionality. Defaults to 4 when zero.
	Dim int

	// Vector, if non-nil, is returned from every Embed call.
	Vector []float32

	// EmbedErr, if non-nil, is returned as the error from Embed.
	EmbedErr error

	// EmbedCalls records the text of every Embed call.
	EmbedCalls []string
}

// Embed records the call and returns Vector or a deterministic default.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	if p.Vector != nil {
		return p.Vector, nil
	}
	out := make([]float32, p.Dimensions())
	for i := range out {
		// Cheap text-dependent fill so different inputs embed differently.
		out[i] = float32((len(text)+i)%7) / 7
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	if p.Dim > 0 {
		return p.Dim
	}
	return 4
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "mock-embedding" }

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
}

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)
