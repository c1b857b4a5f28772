package generator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/faithful-rag/ragserve/internal/domain"
	"github.com/faithful-rag/ragserve/internal/metrics"
)

// OfflineModel is the model name recorded when the deterministic template
// produced the answer.
const OfflineModel = "offline-template"

// ChatCompleter is the model-call contract (transport/openai.ChatClient).
type ChatCompleter interface {
	Complete(ctx context.Context, model, system, user string) (string, error)
}

// Config selects the models the fallback chain may try.
type Config struct {
	BaseModel             string
	FinetunedModel        string
	UseFinetunedByDefault bool
}

// Options are the per-request model knobs.
type Options struct {
	// UseFinetuned overrides the configured default when non-nil.
	UseFinetuned *bool
	// ForceModel, when set, overrides model resolution entirely.
	ForceModel string
}

// Result is a produced answer plus the name of the tier model that made it.
type Result struct {
	Answer string
	Model  string
}

// Service resolves an answer through a tiered fallback chain:
// primary model, then base model, then the offline template. Tier failures
// are logged and counted but never surfaced -- the caller always gets a
// non-empty answer.
type Service struct {
	chat   ChatCompleter
	cfg    Config
	logger *zap.Logger
}

// New creates a generator service. chat may be nil when no API key is
// configured; the chain then goes straight to the offline template.
func New(chat ChatCompleter, cfg Config, logger *zap.Logger) *Service {
	return &Service{chat: chat, cfg: cfg, logger: logger}
}

// Generate answers the query from the retrieved chunks.
func (s *Service) Generate(ctx context.Context, query string, chunks []domain.RetrievedChunk, opts Options) Result {
	primary := s.resolvePrimary(opts)

	if answer, ok := s.tryModel(ctx, "primary", primary, query, chunks); ok {
		return Result{Answer: answer, Model: primary}
	}

	if s.cfg.BaseModel != "" && primary != s.cfg.BaseModel {
		if answer, ok := s.tryModel(ctx, "base", s.cfg.BaseModel, query, chunks); ok {
			return Result{Answer: answer, Model: s.cfg.BaseModel}
		}
	}

	metrics.GenerationAttemptsTotal.WithLabelValues("offline", OfflineModel, "success").Inc()
	return Result{Answer: offlineAnswer(query, chunks), Model: OfflineModel}
}

// resolvePrimary picks the first-tier model: explicit override, else the
// fine-tuned model when requested and configured, else the base model.
func (s *Service) resolvePrimary(opts Options) string {
	if opts.ForceModel != "" {
		return opts.ForceModel
	}

	useFT := s.cfg.UseFinetunedByDefault
	if opts.UseFinetuned != nil {
		useFT = *opts.UseFinetuned
	}

	if useFT && s.cfg.FinetunedModel != "" {
		return s.cfg.FinetunedModel
	}
	return s.cfg.BaseModel
}

// tryModel attempts one tier. A missing client, empty model name, call error
// or blank response all count as tier failure.
func (s *Service) tryModel(ctx context.Context, tier, model, query string, chunks []domain.RetrievedChunk) (string, bool) {
	if s.chat == nil || model == "" {
		return "", false
	}

	answer, err := s.chat.Complete(ctx, model, SystemInstruction, UserMessage(query, chunks))
	if err != nil {
		metrics.GenerationAttemptsTotal.WithLabelValues(tier, model, "error").Inc()
		s.logger.Warn("Generation tier failed",
			zap.String("tier", tier),
			zap.String("model", model),
			zap.Error(err))
		return "", false
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		metrics.GenerationAttemptsTotal.WithLabelValues(tier, model, "error").Inc()
		s.logger.Warn("Generation tier returned empty answer",
			zap.String("tier", tier),
			zap.String("model", model))
		return "", false
	}

	metrics.GenerationAttemptsTotal.WithLabelValues(tier, model, "success").Inc()

	// Append the citation list so traceability survives even when the model
	// omits its own source section.
	if sources := SourcesBlock(chunks); sources != "" {
		answer = fmt.Sprintf("%s\n\nSources:\n%s", answer, sources)
	}
	return answer, true
}
