package chunkindex

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/faithful-rag/ragserve/internal/db"
	"github.com/faithful-rag/ragserve/internal/domain"
)

var (
	genCounterKey = domain.KeyPrefix + "chunks:gen"
	activeGenKey  = domain.KeyPrefix + "chunks:active"
)

// store is the consumer interface for the chunk index (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Config holds the vector index parameters applied to every new generation.
type Config struct {
	Dimensions      int
	HNSWM           int
	HNSWEFConstruct int
}

// Repo persists corpus chunks as hashes under generation-scoped keys, each
// generation with its own FT index. The active-generation pointer is swapped
// only after a generation is fully populated, so searches never observe a
// half-built index.
type Repo struct {
	store store
	cfg   Config
}

// New creates a chunk index repository.
func New(s store, cfg Config) *Repo {
	return &Repo{store: s, cfg: cfg}
}

// ActiveGeneration returns the currently searchable generation, 0 when no
// generation has been promoted yet.
func (r *Repo) ActiveGeneration(ctx context.Context) (int64, error) {
	raw, err := r.store.Get(ctx, activeGenKey)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get active generation: %w", err)
	}

	gen, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse active generation %q: %w", raw, err)
	}
	return gen, nil
}

// BeginGeneration allocates a new generation number and creates its FT index.
func (r *Repo) BeginGeneration(ctx context.Context) (int64, error) {
	gen, err := r.store.IncrBy(ctx, genCounterKey, 1)
	if err != nil {
		return 0, fmt.Errorf("next generation: %w", err)
	}

	def, err := db.NewIndex(indexNameFor(gen)).
		Prefix(keyPrefixFor(gen)).
		Tag("source").
		Numeric("chunk").
		Text("text").
		VectorHNSW("vector", r.cfg.Dimensions, r.cfg.HNSWM, r.cfg.HNSWEFConstruct).
		Build()
	if err != nil {
		return 0, fmt.Errorf("build index definition: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		return 0, fmt.Errorf("create index g%d: %w", gen, err)
	}
	return gen, nil
}

// AddChunks writes a batch of chunk entries into the given generation.
func (r *Repo) AddChunks(ctx context.Context, gen int64, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, 0, len(entries))
	for i := range entries {
		items = append(items, db.HashSetItem{
			Key:    chunkKey(gen, entries[i].Seq),
			Fields: buildHashFields(&entries[i]),
		})
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("hset chunks g%d: %w", gen, err)
	}
	return nil
}

// Promote makes the generation the active search target.
func (r *Repo) Promote(ctx context.Context, gen int64) error {
	if err := r.store.Set(ctx, activeGenKey, []byte(strconv.FormatInt(gen, 10))); err != nil {
		return fmt.Errorf("promote generation g%d: %w", gen, err)
	}
	return nil
}

// DropGeneration removes a generation's FT index and all its chunk keys.
// A missing index is not an error: dropping an already-dropped generation
// must stay idempotent.
func (r *Repo) DropGeneration(ctx context.Context, gen int64) error {
	if gen <= 0 {
		return nil
	}

	if err := r.store.DropIndex(ctx, indexNameFor(gen)); err != nil &&
		!errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index g%d: %w", gen, err)
	}

	keys, err := r.store.Scan(ctx, keyPrefixFor(gen)+"*")
	if err != nil {
		return fmt.Errorf("scan chunks g%d: %w", gen, err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("del chunks g%d: %w", gen, err)
	}
	return nil
}

// Search runs a KNN query against the active generation and returns chunks
// ordered by ascending cosine distance.
func (r *Repo) Search(ctx context.Context, vector []float32, k int) ([]domain.RetrievedChunk, error) {
	gen, err := r.ActiveGeneration(ctx)
	if err != nil {
		return nil, err
	}
	if gen == 0 {
		return nil, domain.ErrIndexEmpty
	}

	result, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    indexNameFor(gen),
		Vector:       vector,
		K:            k,
		ReturnFields: []string{"source", "chunk", "text", "__vector_score"},
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, domain.ErrIndexEmpty
		}
		return nil, fmt.Errorf("knn search g%d: %w", gen, err)
	}

	chunks := make([]domain.RetrievedChunk, 0, len(result.Entries))
	for _, entry := range result.Entries {
		chunks = append(chunks, parseSearchEntry(&entry))
	}
	return chunks, nil
}

func keyPrefixFor(gen int64) string {
	return fmt.Sprintf("%schunks:g%d:", domain.KeyPrefix, gen)
}

func chunkKey(gen int64, seq int) string {
	return fmt.Sprintf("%schunks:g%d:%d", domain.KeyPrefix, gen, seq)
}

func indexNameFor(gen int64) string {
	return fmt.Sprintf("%schunks:g%d:idx", domain.KeyPrefix, gen)
}
