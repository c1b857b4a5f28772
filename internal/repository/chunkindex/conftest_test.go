package chunkindex

import (
	"context"
	"testing"

	"github.com/faithful-rag/ragserve/internal/db"
)

const testVectorDim = 384

// mockStore implements the consumer interface for tests.
type mockStore struct {
	getFn         func(ctx context.Context, key string) ([]byte, error)
	setFn         func(ctx context.Context, key string, value []byte) error
	incrByFn      func(ctx context.Context, key string, val int64) (int64, error)
	hsetMultiFn   func(ctx context.Context, items []db.HashSetItem) error
	delFn         func(ctx context.Context, keys ...string) error
	scanFn        func(ctx context.Context, pattern string) ([]string, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	dropIndexFn   func(ctx context.Context, name string) error
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) Set(ctx context.Context, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	return nil
}

func (m *mockStore) IncrBy(ctx context.Context, key string, val int64) (int64, error) {
	if m.incrByFn != nil {
		return m.incrByFn(ctx, key, val)
	}
	return 1, nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	if m.delFn != nil {
		return m.delFn(ctx, keys...)
	}
	return nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, name string) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name)
	}
	return nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

// knnReply emulates the RETURN clause of FT.SEARCH: only the fields named
// in the query come back, and the distance survives only when
// __vector_score was requested.
func knnReply(q *db.KNNQuery, entries []db.SearchEntry) *db.SearchResult {
	requested := make(map[string]struct{}, len(q.ReturnFields))
	for _, f := range q.ReturnFields {
		requested[f] = struct{}{}
	}
	_, wantScore := requested["__vector_score"]

	out := make([]db.SearchEntry, 0, len(entries))
	for _, e := range entries {
		fields := make(map[string]string, len(e.Fields))
		for name, val := range e.Fields {
			if _, ok := requested[name]; ok {
				fields[name] = val
			}
		}
		reply := db.SearchEntry{Key: e.Key, Fields: fields}
		if wantScore && e.HasDistance {
			reply.Distance = e.Distance
			reply.HasDistance = true
		}
		out = append(out, reply)
	}
	return &db.SearchResult{Total: len(out), Entries: out}
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, Config{Dimensions: testVectorDim, HNSWM: 32, HNSWEFConstruct: 400})
	return repo, ms
}
