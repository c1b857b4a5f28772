package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/faithful-rag/ragserve/internal/domain"
	"github.com/faithful-rag/ragserve/internal/usecase/generator"
)

// RunReader lists run records for export.
type RunReader interface {
	All(ctx context.Context) ([]domain.RunRecord, error)
}

// Message is one chat turn of a training example.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Metadata is traceability data attached to an example; it is not part of
// the training conversation itself.
type Metadata struct {
	RunID      string       `json:"run_id"`
	Label      domain.Label `json:"label"`
	TrustScore int          `json:"trust_score"`
	TopK       int          `json:"top_k"`
	Model      string       `json:"model"`
}

// Example is one instruction-tuning record in chat format.
type Example struct {
	Messages []Message `json:"messages"`
	Metadata Metadata  `json:"metadata"`
}

// Service renders labeled runs into fine-tuning examples. The prompt text
// is built with the generator's own builders, so training examples match
// what the model sees at answer time exactly.
type Service struct {
	runs   RunReader
	path   string
	logger *zap.Logger
}

// New creates a dataset exporter. path is where the NDJSON snapshot is
// written on each export.
func New(runs RunReader, path string, logger *zap.Logger) *Service {
	return &Service{runs: runs, path: path, logger: logger}
}

// Export builds training examples from every labeled run. Fails when the
// log is empty or holds no labeled runs. Persisting the NDJSON snapshot is
// a side effect: its failure is logged, not returned.
func (s *Service) Export(ctx context.Context) ([]Example, error) {
	recs, err := s.runs.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}
	if len(recs) == 0 {
		return nil, domain.ErrNoRuns
	}

	examples := make([]Example, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		if !rec.Labeled() {
			continue
		}
		examples = append(examples, buildExample(rec))
	}
	if len(examples) == 0 {
		return nil, domain.ErrNoLabeledRuns
	}

	if s.path != "" {
		if err := s.persist(examples); err != nil {
			s.logger.Error("Failed to persist exported dataset",
				zap.String("path", s.path), zap.Error(err))
		}
	}

	return examples, nil
}

func buildExample(rec *domain.RunRecord) Example {
	return Example{
		Messages: []Message{
			{Role: "system", Content: generator.SystemInstruction},
			{Role: "user", Content: generator.UserMessage(rec.Query, rec.Retrieved)},
			{Role: "assistant", Content: rec.Answer},
		},
		Metadata: Metadata{
			RunID:      rec.ID,
			Label:      rec.Label,
			TrustScore: rec.TrustScore,
			TopK:       rec.TopK,
			Model:      rec.Model,
		},
	}
}

// persist writes the examples as NDJSON, one example per line.
func (s *Service) persist(examples []Example) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range examples {
		if err := enc.Encode(&examples[i]); err != nil {
			return fmt.Errorf("encode example %d: %w", i, err)
		}
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}
