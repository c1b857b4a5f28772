package query

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faithful-rag/ragserve/internal/domain"
	"github.com/faithful-rag/ragserve/internal/metrics"
	"github.com/faithful-rag/ragserve/internal/usecase/generator"
	"github.com/faithful-rag/ragserve/internal/usecase/scorer"
)

// DefaultTopK is used when the request does not set top_k.
const DefaultTopK = 3

// EmptyQueryAnswer is the fixed response for blank questions. Such requests
// are never logged as runs.
const EmptyQueryAnswer = "Please provide a non-empty question."

// Retriever finds the nearest chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedChunk, error)
}

// Scorer computes per-source quality scores from labeled history.
type Scorer interface {
	SourceScores(ctx context.Context) (map[string]float64, error)
}

// Generator produces an answer from retrieved chunks.
type Generator interface {
	Generate(ctx context.Context, query string, chunks []domain.RetrievedChunk, opts generator.Options) generator.Result
}

// RunAppender records completed runs.
type RunAppender interface {
	Append(ctx context.Context, rec *domain.RunRecord) error
}

// Request is one question with its retrieval and model knobs.
type Request struct {
	Query        string
	TopK         int
	UseFinetuned *bool
	ForceModel   string
	// Rerank reorders candidates by labeled-history source scores before
	// generation.
	Rerank bool
}

// Response is the answer plus everything needed to render and label it.
type Response struct {
	RunID      string                  `json:"run_id,omitempty"`
	Answer     string                  `json:"answer"`
	LatencyMS  float64                 `json:"latency_ms"`
	TrustScore int                     `json:"trust_score"`
	Chunks     []domain.RetrievedChunk `json:"chunks"`
	Model      string                  `json:"model"`
}

// Service orchestrates one question-answer cycle: retrieve, optionally
// re-rank, generate, then append the run record.
type Service struct {
	retriever Retriever
	scorer    Scorer
	generator Generator
	runs      RunAppender
	logger    *zap.Logger
}

// New creates a query service.
func New(retriever Retriever, scorer Scorer, gen Generator, runs RunAppender, logger *zap.Logger) *Service {
	return &Service{
		retriever: retriever,
		scorer:    scorer,
		generator: gen,
		runs:      runs,
		logger:    logger,
	}
}

// Ask answers one question. Failure to append the run record never fails
// the response; it is logged and counted instead.
func (s *Service) Ask(ctx context.Context, req Request) (Response, error) {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return Response{
			Answer: EmptyQueryAnswer,
			Chunks: []domain.RetrievedChunk{},
		}, nil
	}

	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	start := time.Now()

	chunks, err := s.retriever.Retrieve(ctx, q, topK)
	if err != nil {
		return Response{}, err
	}

	if req.Rerank && len(chunks) > 1 {
		chunks = s.rerank(ctx, chunks)
	}

	result := s.generator.Generate(ctx, q, chunks, generator.Options{
		UseFinetuned: req.UseFinetuned,
		ForceModel:   req.ForceModel,
	})

	latency := float64(time.Since(start)) / float64(time.Millisecond)
	trust := domain.TrustScore(chunks)

	if chunks == nil {
		chunks = []domain.RetrievedChunk{}
	}

	rec := domain.RunRecord{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Query:      q,
		Answer:     result.Answer,
		LatencyMS:  latency,
		TrustScore: trust,
		TopK:       topK,
		Model:      result.Model,
		Retrieved:  chunks,
	}
	if err := s.runs.Append(ctx, &rec); err != nil {
		metrics.RunLogAppendFailures.Inc()
		s.logger.Error("Failed to append run record",
			zap.String("run_id", rec.ID), zap.Error(err))
	}

	return Response{
		RunID:      rec.ID,
		Answer:     result.Answer,
		LatencyMS:  latency,
		TrustScore: trust,
		Chunks:     chunks,
		Model:      result.Model,
	}, nil
}

// rerank reorders by labeled-history scores. Scoring failures fall back to
// the original retrieval order.
func (s *Service) rerank(ctx context.Context, chunks []domain.RetrievedChunk) []domain.RetrievedChunk {
	scores, err := s.scorer.SourceScores(ctx)
	if err != nil {
		s.logger.Warn("Source scoring failed, keeping retrieval order", zap.Error(err))
		return chunks
	}
	return scorer.Rerank(chunks, scores)
}
