package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/faithful-rag/ragserve/internal/db"
	"github.com/faithful-rag/ragserve/internal/domain"
)

var (
	runListKey   = domain.KeyPrefix + "runs"
	runKeyPrefix = domain.KeyPrefix + "run:"
)

// store is the consumer interface for the run log (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// Repo persists run records as one JSON value per run, with a list holding
// the append order. Patching a run rewrites only that run's key, never the
// whole log.
type Repo struct {
	store  store
	logger *zap.Logger

	// Guards read-modify-write on individual run keys.
	mu sync.Mutex
}

// New creates a run log repository.
func New(s store, logger *zap.Logger) *Repo {
	return &Repo{store: s, logger: logger}
}

// Append persists a new run record and registers it in the append-order list.
func (r *Repo) Append(ctx context.Context, rec *domain.RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", rec.ID, err)
	}

	if err := r.store.Set(ctx, runKey(rec.ID), data); err != nil {
		return fmt.Errorf("set run %s: %w", rec.ID, err)
	}
	if err := r.store.RPush(ctx, runListKey, rec.ID); err != nil {
		return fmt.Errorf("push run %s: %w", rec.ID, err)
	}
	return nil
}

// All returns every run in append order. Records that fail to load or parse
// are logged and skipped rather than failing the whole listing.
func (r *Repo) All(ctx context.Context) ([]domain.RunRecord, error) {
	ids, err := r.store.LRange(ctx, runListKey, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return r.load(ctx, ids), nil
}

// Recent returns up to limit runs, newest first.
func (r *Repo) Recent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := r.store.LRange(ctx, runListKey, int64(-limit), -1)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}

	recs := r.load(ctx, ids)
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// Get returns a single run by id.
func (r *Repo) Get(ctx context.Context, id string) (domain.RunRecord, error) {
	data, err := r.store.Get(ctx, runKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.RunRecord{}, domain.ErrRunNotFound
		}
		return domain.RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}

	var rec domain.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.RunRecord{}, fmt.Errorf("unmarshal run %s: %w", id, err)
	}
	return rec, nil
}

// ApplyPatch performs a point update of one run's mutable fields (label,
// notes) and returns the updated record. Only the patched run's key is
// rewritten.
func (r *Repo) ApplyPatch(ctx context.Context, id string, p domain.RunPatch) (domain.RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.Get(ctx, id)
	if err != nil {
		return domain.RunRecord{}, err
	}

	if p.Label != nil {
		rec.Label = *p.Label
	}
	if p.Notes != nil {
		rec.Notes = *p.Notes
	}

	data, err := json.Marshal(&rec)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("marshal patched run %s: %w", id, err)
	}
	if err := r.store.Set(ctx, runKey(id), data); err != nil {
		return domain.RunRecord{}, fmt.Errorf("set patched run %s: %w", id, err)
	}
	return rec, nil
}

// Clear removes all run records and the append-order list. Returns the
// number of runs removed.
func (r *Repo) Clear(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, err := r.store.Scan(ctx, runKeyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("scan runs: %w", err)
	}

	if len(keys) > 0 {
		if err := r.store.Del(ctx, keys...); err != nil {
			return 0, fmt.Errorf("del runs: %w", err)
		}
	}
	if err := r.store.Del(ctx, runListKey); err != nil {
		return 0, fmt.Errorf("del run list: %w", err)
	}
	return len(keys), nil
}

func (r *Repo) load(ctx context.Context, ids []string) []domain.RunRecord {
	recs := make([]domain.RunRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Get(ctx, id)
		if err != nil {
			r.logger.Warn("Skipping unreadable run record",
				zap.String("run_id", id), zap.Error(err))
			continue
		}
		recs = append(recs, rec)
	}
	return recs
}

func runKey(id string) string {
	return runKeyPrefix + id
}
