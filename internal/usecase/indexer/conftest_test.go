package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/faithful-rag/ragserve/internal/domain"
)

// mockIndex implements the Index contract for tests.
type mockIndex struct {
	activeFn  func(ctx context.Context) (int64, error)
	beginFn   func(ctx context.Context) (int64, error)
	addFn     func(ctx context.Context, gen int64, entries []domain.IndexEntry) error
	promoteFn func(ctx context.Context, gen int64) error
	dropFn    func(ctx context.Context, gen int64) error

	promoted []int64
	dropped  []int64
	added    map[int64][]domain.IndexEntry
}

func newMockIndex() *mockIndex {
	return &mockIndex{added: make(map[int64][]domain.IndexEntry)}
}

func (m *mockIndex) ActiveGeneration(ctx context.Context) (int64, error) {
	if m.activeFn != nil {
		return m.activeFn(ctx)
	}
	return 0, nil
}

func (m *mockIndex) BeginGeneration(ctx context.Context) (int64, error) {
	if m.beginFn != nil {
		return m.beginFn(ctx)
	}
	return 1, nil
}

func (m *mockIndex) AddChunks(ctx context.Context, gen int64, entries []domain.IndexEntry) error {
	if m.addFn != nil {
		return m.addFn(ctx, gen, entries)
	}
	m.added[gen] = append(m.added[gen], entries...)
	return nil
}

func (m *mockIndex) Promote(ctx context.Context, gen int64) error {
	if m.promoteFn != nil {
		return m.promoteFn(ctx, gen)
	}
	m.promoted = append(m.promoted, gen)
	return nil
}

func (m *mockIndex) DropGeneration(ctx context.Context, gen int64) error {
	if m.dropFn != nil {
		return m.dropFn(ctx, gen)
	}
	m.dropped = append(m.dropped, gen)
	return nil
}

// mockBatchEmbedder returns a fixed-size vector per text.
type mockBatchEmbedder struct {
	err   error
	calls int
}

func (m *mockBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = []float32{0.1, 0.2}
	}
	return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
}

// writeCorpus creates a temp corpus dir with the given file contents.
func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func newTestService(t *testing.T, dir string, index *mockIndex, embed *mockBatchEmbedder) *Service {
	t.Helper()
	return New(index, embed, Config{
		Dir:            dir,
		Patterns:       []string{"*.txt", "*.md"},
		ChunkSizeWords: 5,
		OverlapWords:   1,
		BatchSize:      2,
	}, zap.NewNop())
}
