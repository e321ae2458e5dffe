package rag

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/ragserve/internal/store"
)

// Chunk is one ranked retrieval hit. SourceID is nil when the indexed
// chunk carries no identifier.
type Chunk struct {
	Content  string
	SourceID *string
	Score    float64
}

// Embedder produces embedding vectors for texts.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever answers similarity searches over the embedded document
// chunks in the store.
type Retriever struct {
	Store    *store.Store
	Embedder Embedder
}

// Retrieve embeds the query and returns the topK closest chunks in
// ranking order.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]Chunk, error) {
	vecs, err := r.Embedder.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: empty embedding response")
	}

	hits, err := r.Store.SearchChunks(ctx, vecs[0], topK)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, len(hits))
	for i, hit := range hits {
		chunks[i] = Chunk{Content: hit.Content, SourceID: hit.SourceID, Score: hit.Distance}
	}
	return chunks, nil
}
