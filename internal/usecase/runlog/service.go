package runlog

import (
	"context"
	"fmt"

	"github.com/faithful-rag/ragserve/internal/domain"
)

// DefaultRecentLimit bounds run listings when the caller gives no limit.
const DefaultRecentLimit = 50

// Repository is the storage contract for run records.
type Repository interface {
	Append(ctx context.Context, rec *domain.RunRecord) error
	Recent(ctx context.Context, limit int) ([]domain.RunRecord, error)
	ApplyPatch(ctx context.Context, id string, p domain.RunPatch) (domain.RunRecord, error)
	Clear(ctx context.Context) (int, error)
}

// Service exposes run history operations: listing, labeling and clearing.
type Service struct {
	repo Repository
}

// New creates a run log service.
func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// Append records a completed run.
func (s *Service) Append(ctx context.Context, rec *domain.RunRecord) error {
	return s.repo.Append(ctx, rec)
}

// Recent returns up to limit runs, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return s.repo.Recent(ctx, limit)
}

// PatchRequest carries the mutable run fields from the API. A nil field is
// left untouched.
type PatchRequest struct {
	Label *string
	Notes *string
}

// Patch updates a run's label and/or notes by id. An unknown label value is
// rejected before anything is written.
func (s *Service) Patch(ctx context.Context, id string, req PatchRequest) (domain.RunRecord, error) {
	var p domain.RunPatch

	if req.Label != nil {
		label := domain.Label(*req.Label)
		if !label.Valid() {
			return domain.RunRecord{}, fmt.Errorf("label %q: %w", *req.Label, domain.ErrInvalidLabel)
		}
		p.Label = &label
	}
	p.Notes = req.Notes

	rec, err := s.repo.ApplyPatch(ctx, id, p)
	if err != nil {
		return domain.RunRecord{}, err
	}
	return rec, nil
}

// Clear wipes the whole run history and returns how many runs were removed.
func (s *Service) Clear(ctx context.Context) (int, error) {
	return s.repo.Clear(ctx)
}
