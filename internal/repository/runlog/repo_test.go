package runlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/faithful-rag/ragserve/internal/db"
	"github.com/faithful-rag/ragserve/internal/domain"
)

func testRecord(id string) *domain.RunRecord {
	return &domain.RunRecord{
		ID:         id,
		Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Query:      "what is chunking?",
		Answer:     "splitting text into windows",
		LatencyMS:  42.5,
		TrustScore: 75,
		TopK:       3,
		Model:      "test-model",
	}
}

// --- Append ---

func TestAppend_WritesRecordAndOrder(t *testing.T) {
	repo, ms := newTestRepo(t)

	var setKey string
	ms.setFn = func(_ context.Context, key string, _ []byte) error {
		setKey = key
		return nil
	}
	var pushed []string
	ms.rpushFn = func(_ context.Context, key string, values ...string) error {
		if key != "ragserve:runs" {
			t.Errorf("unexpected list key: %s", key)
		}
		pushed = values
		return nil
	}

	if err := repo.Append(context.Background(), testRecord("run-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if setKey != "ragserve:run:run-1" {
		t.Errorf("unexpected run key: %s", setKey)
	}
	if len(pushed) != 1 || pushed[0] != "run-1" {
		t.Errorf("unexpected pushed ids: %v", pushed)
	}
}

func TestAppend_SetError(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		return errors.New("connection lost")
	}
	ms.rpushFn = func(_ context.Context, _ string, _ ...string) error {
		t.Fatal("RPush must not run when Set fails")
		return nil
	}

	if err := repo.Append(context.Background(), testRecord("run-1")); err == nil {
		t.Fatal("expected error on SET failure")
	}
}

// --- All / Recent ---

func TestAll_OrderPreserved(t *testing.T) {
	repo, _ := newMemRepo(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := repo.Append(ctx, testRecord(id)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	recs, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if recs[i].ID != want {
			t.Errorf("recs[%d].ID = %s, expected %s", i, recs[i].ID, want)
		}
	}
}

func TestAll_SkipsMalformed(t *testing.T) {
	repo, ms := newMemRepo(t)
	ctx := context.Background()

	if err := repo.Append(ctx, testRecord("good")); err != nil {
		t.Fatalf("append: %v", err)
	}
	ms.list = append(ms.list, "broken")
	ms.kv["ragserve:run:broken"] = []byte("{not json")

	recs, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "good" {
		t.Fatalf("expected only the parseable record, got %+v", recs)
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	repo, _ := newMemRepo(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		if err := repo.Append(ctx, testRecord(id)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	recs, err := repo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].ID != "d" || recs[1].ID != "c" {
		t.Errorf("expected [d c], got [%s %s]", recs[0].ID, recs[1].ID)
	}
}

func TestRecent_LimitLargerThanLog(t *testing.T) {
	repo, _ := newMemRepo(t)
	ctx := context.Background()

	if err := repo.Append(ctx, testRecord("only")); err != nil {
		t.Fatalf("append: %v", err)
	}

	recs, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
}

func TestRecent_ZeroLimit(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.lrangeFn = func(_ context.Context, _ string, _, _ int64) ([]string, error) {
		t.Fatal("LRange must not run for limit 0")
		return nil, nil
	}

	recs, err := repo.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recs != nil {
		t.Errorf("expected nil, got %v", recs)
	}
}

// --- ApplyPatch ---

func TestApplyPatch_LabelOnly(t *testing.T) {
	repo, ms := newMemRepo(t)
	ctx := context.Background()

	orig := testRecord("run-1")
	orig.Notes = "keep me"
	if err := repo.Append(ctx, orig); err != nil {
		t.Fatalf("append: %v", err)
	}

	label := domain.LabelGood
	rec, err := repo.ApplyPatch(ctx, "run-1", domain.RunPatch{Label: &label})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Label != domain.LabelGood {
		t.Errorf("label = %s, expected good", rec.Label)
	}
	if rec.Notes != "keep me" {
		t.Errorf("notes changed unexpectedly: %q", rec.Notes)
	}
	if rec.Answer != orig.Answer {
		t.Errorf("immutable field changed: %q", rec.Answer)
	}

	// The patch must be persisted, not just returned.
	stored, err := repo.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get after patch: %v", err)
	}
	if stored.Label != domain.LabelGood {
		t.Errorf("persisted label = %s, expected good", stored.Label)
	}
	if _, ok := ms.kv["ragserve:run:run-1"]; !ok {
		t.Error("run key missing after patch")
	}
}

func TestApplyPatch_NotesCleared(t *testing.T) {
	repo, _ := newMemRepo(t)
	ctx := context.Background()

	orig := testRecord("run-1")
	orig.Notes = "old notes"
	if err := repo.Append(ctx, orig); err != nil {
		t.Fatalf("append: %v", err)
	}

	empty := ""
	rec, err := repo.ApplyPatch(ctx, "run-1", domain.RunPatch{Notes: &empty})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Notes != "" {
		t.Errorf("expected cleared notes, got %q", rec.Notes)
	}
}

func TestApplyPatch_NotFound(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, db.ErrKeyNotFound
	}

	label := domain.LabelGood
	_, err := repo.ApplyPatch(context.Background(), "missing", domain.RunPatch{Label: &label})
	if !errors.Is(err, domain.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

// --- Clear ---

func TestClear_RemovesEverything(t *testing.T) {
	repo, ms := newMemRepo(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := repo.Append(ctx, testRecord(id)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	n, err := repo.Clear(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 cleared, got %d", n)
	}

	recs, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("all after clear: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected empty log after clear, got %d records", len(recs))
	}
	if len(ms.kv) != 0 {
		t.Errorf("expected empty store, got %d keys", len(ms.kv))
	}
}

func TestClear_EmptyLog(t *testing.T) {
	repo, _ := newMemRepo(t)

	n, err := repo.Clear(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 cleared, got %d", n)
	}
}
