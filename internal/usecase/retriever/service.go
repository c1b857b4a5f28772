package retriever

import (
	"context"
	"fmt"

	"github.com/faithful-rag/ragserve/internal/domain"
)

// Index is the storage contract for KNN search.
type Index interface {
	Search(ctx context.Context, vector []float32, k int) ([]domain.RetrievedChunk, error)
}

// Service retrieves the chunks nearest to a query embedding.
type Service struct {
	embed domain.Embedder
	index Index
}

// New creates a retriever service.
func New(embed domain.Embedder, index Index) *Service {
	return &Service{embed: embed, index: index}
}

// Retrieve embeds the query and returns up to k chunks ordered by ascending
// cosine distance.
func (s *Service) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	res, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	chunks, err := s.index.Search(ctx, res.Embedding, k)
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	if len(chunks) > k {
		chunks = chunks[:k]
	}
	return chunks, nil
}
