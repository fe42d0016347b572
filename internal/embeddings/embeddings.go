// Package embeddings defines the embedding capability used by the Weaviate
// memory backend.
package embeddings

import "context"

// EmbeddingProvider produces vector representations for text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
