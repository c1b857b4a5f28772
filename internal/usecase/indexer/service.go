package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/faithful-rag/ragserve/internal/domain"
)

// Index is the storage contract for corpus generations.
type Index interface {
	ActiveGeneration(ctx context.Context) (int64, error)
	BeginGeneration(ctx context.Context) (int64, error)
	AddChunks(ctx context.Context, gen int64, entries []domain.IndexEntry) error
	Promote(ctx context.Context, gen int64) error
	DropGeneration(ctx context.Context, gen int64) error
}

// Embedder vectorizes chunk batches.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Config holds the corpus location and chunking parameters.
type Config struct {
	Dir            string
	Patterns       []string
	ChunkSizeWords int
	OverlapWords   int
	BatchSize      int
}

// BuildResult summarizes one completed index build.
type BuildResult struct {
	Generation int64 `json:"generation"`
	Chunks     int   `json:"chunks"`
	Sources    int   `json:"sources"`
}

// Service builds the chunk index from the corpus directory. A build
// populates a fresh generation and promotes it only once fully written, so
// concurrent searches always hit a complete index.
type Service struct {
	index  Index
	embed  Embedder
	cfg    Config
	logger *zap.Logger

	// One build at a time.
	mu sync.Mutex
}

// New creates an indexer service.
func New(index Index, embed Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return &Service{index: index, embed: embed, cfg: cfg, logger: logger}
}

// Build chunks the corpus, embeds every chunk, writes a new generation and
// swaps the active pointer to it. The previous generation is dropped
// best-effort afterwards.
func (s *Service) Build(ctx context.Context) (BuildResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.index.ActiveGeneration(ctx)
	if err != nil {
		return BuildResult{}, fmt.Errorf("active generation: %w", err)
	}

	chunks, sources, err := s.loadCorpus()
	if err != nil {
		return BuildResult{}, err
	}

	gen, err := s.index.BeginGeneration(ctx)
	if err != nil {
		return BuildResult{}, fmt.Errorf("begin generation: %w", err)
	}

	if err := s.populate(ctx, gen, chunks); err != nil {
		// Abandoned generation: clean up what was written so far.
		if dropErr := s.index.DropGeneration(ctx, gen); dropErr != nil {
			s.logger.Warn("Failed to drop abandoned generation",
				zap.Int64("generation", gen), zap.Error(dropErr))
		}
		return BuildResult{}, err
	}

	if err := s.index.Promote(ctx, gen); err != nil {
		return BuildResult{}, fmt.Errorf("promote generation g%d: %w", gen, err)
	}

	if old != 0 {
		if err := s.index.DropGeneration(ctx, old); err != nil {
			s.logger.Warn("Failed to drop previous generation",
				zap.Int64("generation", old), zap.Error(err))
		}
	}

	s.logger.Info("Index build complete",
		zap.Int64("generation", gen),
		zap.Int("chunks", len(chunks)),
		zap.Int("sources", sources))

	return BuildResult{Generation: gen, Chunks: len(chunks), Sources: sources}, nil
}

// EnsureIndex builds the index only when no generation is active yet.
// Returns true if a build ran.
func (s *Service) EnsureIndex(ctx context.Context) (bool, error) {
	gen, err := s.index.ActiveGeneration(ctx)
	if err != nil {
		return false, fmt.Errorf("active generation: %w", err)
	}
	if gen != 0 {
		return false, nil
	}

	if _, err := s.Build(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// populate embeds chunks in batches and writes them into the generation.
func (s *Service) populate(ctx context.Context, gen int64, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		res, err := s.embed.BatchEmbed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if len(res.Embeddings) != len(batch) {
			return fmt.Errorf("embed batch at %d: got %d vectors for %d chunks",
				start, len(res.Embeddings), len(batch))
		}

		entries := make([]domain.IndexEntry, len(batch))
		for i, c := range batch {
			entries[i] = domain.IndexEntry{Chunk: c, Vector: res.Embeddings[i]}
		}

		if err := s.index.AddChunks(ctx, gen, entries); err != nil {
			return fmt.Errorf("add chunks at %d: %w", start, err)
		}
	}
	return nil
}

// loadCorpus reads every matching corpus file and chunks it. Chunk sequence
// numbers form one counter across all files, in sorted file order, so ids
// are stable between identical builds.
func (s *Service) loadCorpus() ([]domain.Chunk, int, error) {
	files, err := s.listSourceFiles()
	if err != nil {
		return nil, 0, err
	}

	var chunks []domain.Chunk
	seq := 0
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(s.cfg.Dir, rel))
		if err != nil {
			return nil, 0, fmt.Errorf("read corpus file %s: %w", rel, err)
		}

		source := filepath.Base(rel)
		for _, text := range chunkWords(string(data), s.cfg.ChunkSizeWords, s.cfg.OverlapWords) {
			chunks = append(chunks, domain.Chunk{Source: source, Seq: seq, Text: text})
			seq++
		}
	}

	return chunks, len(files), nil
}

// listSourceFiles resolves glob patterns under the corpus dir, deduplicated
// and sorted.
func (s *Service) listSourceFiles() ([]string, error) {
	fsys := os.DirFS(s.cfg.Dir)

	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range s.cfg.Patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			info, err := fs.Stat(fsys, m)
			if err != nil || info.IsDir() {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}

	sort.Strings(files)
	return files, nil
}
