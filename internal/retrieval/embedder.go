package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// EmbeddingModel computes embeddings. Both the Ollama client and the
// OpenAI-compatible client satisfy it.
type EmbeddingModel interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Embedder binds an EmbeddingModel to a model name.
type Embedder struct {
	backend EmbeddingModel
	model   string
}

// NewEmbedder creates an Embedder calling backend with model.
func NewEmbedder(backend EmbeddingModel, model string) *Embedder {
	return &Embedder{backend: backend, model: model}
}

// Embed returns the embedding of a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.backend.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vec, nil
}

// EmbedBatch embeds texts with at most four requests in flight. Results keep
// the input order; nil input yields nil.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.backend.Embed(gCtx, e.model, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
