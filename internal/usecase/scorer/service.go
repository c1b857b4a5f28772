package scorer

import (
	"context"
	"fmt"
	"sort"

	"github.com/faithful-rag/ragserve/internal/domain"
)

// Label weights for the per-source score. no_evidence carries no signal
// about the source itself, so it contributes nothing.
const (
	goodWeight     = 1.0
	mixedWeight    = 0.3
	offTopicWeight = -1.0
)

// RunReader lists run records for score aggregation.
type RunReader interface {
	All(ctx context.Context) ([]domain.RunRecord, error)
}

// Service derives per-source quality scores from labeled run history and
// re-ranks retrieval candidates with them.
type Service struct {
	runs RunReader
}

// New creates a scorer service.
func New(runs RunReader) *Service {
	return &Service{runs: runs}
}

// SourceScores aggregates labeled runs into a source->score map. Every
// retrieved chunk of a labeled run contributes its run's label weight to
// the chunk's source. Sources never seen in a labeled run are absent from
// the map.
func (s *Service) SourceScores(ctx context.Context) (map[string]float64, error) {
	recs, err := s.runs.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}

	scores := make(map[string]float64)
	for i := range recs {
		rec := &recs[i]
		if !rec.Labeled() {
			continue
		}

		var weight float64
		switch rec.Label {
		case domain.LabelGood:
			weight = goodWeight
		case domain.LabelMixed:
			weight = mixedWeight
		case domain.LabelOffTopic:
			weight = offTopicWeight
		default:
			continue
		}

		for _, c := range rec.Retrieved {
			scores[c.Source] += weight
		}
	}
	return scores, nil
}

// Rerank orders chunks by sourceScores[source] - distance, descending.
// Missing scores and missing distances both default to 0. The sort is
// stable: ties keep the original retrieval order. Input is not mutated.
func Rerank(chunks []domain.RetrievedChunk, sourceScores map[string]float64) []domain.RetrievedChunk {
	out := make([]domain.RetrievedChunk, len(chunks))
	copy(out, chunks)

	sort.SliceStable(out, func(i, j int) bool {
		return combined(&out[i], sourceScores) > combined(&out[j], sourceScores)
	})
	return out
}

func combined(c *domain.RetrievedChunk, sourceScores map[string]float64) float64 {
	score := sourceScores[c.Source]
	if c.Distance != nil {
		score -= *c.Distance
	}
	return score
}
