package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/faithful-rag/ragserve/internal/domain"
	"github.com/faithful-rag/ragserve/internal/usecase/exporter"
	"github.com/faithful-rag/ragserve/internal/usecase/indexer"
	"github.com/faithful-rag/ragserve/internal/usecase/query"
	runloguc "github.com/faithful-rag/ragserve/internal/usecase/runlog"
)

// Error codes returned in JSON error bodies.
const (
	CodeBadRequest             = "bad_request"
	CodeValidationFailed       = "validation_failed"
	CodeRunNotFound            = "run_not_found"
	CodeNoRuns                 = "no_runs"
	CodeNoLabeledRuns          = "no_labeled_runs"
	CodeIndexEmpty             = "index_empty"
	CodeEmbeddingProviderError = "embedding_provider_error"
	CodeInternalError          = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Asker answers questions.
type Asker interface {
	Ask(ctx context.Context, req query.Request) (query.Response, error)
}

// RunService exposes run history operations.
type RunService interface {
	Recent(ctx context.Context, limit int) ([]domain.RunRecord, error)
	Patch(ctx context.Context, id string, req runloguc.PatchRequest) (domain.RunRecord, error)
	Clear(ctx context.Context) (int, error)
}

// ExportService renders labeled runs into training examples.
type ExportService interface {
	Export(ctx context.Context) ([]exporter.Example, error)
}

// IndexService rebuilds the chunk index.
type IndexService interface {
	Build(ctx context.Context) (indexer.BuildResult, error)
}

// Pinger reports storage reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the use case services onto the REST surface.
type Server struct {
	query         Asker
	runs          RunService
	export        ExportService
	index         IndexService
	pinger        Pinger
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	q Asker,
	runs RunService,
	export ExportService,
	index IndexService,
	pinger Pinger,
	logger *zap.Logger,
) *Server {
	s := &Server{
		query:  q,
		runs:   runs,
		export: export,
		index:  index,
		pinger: pinger,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrRunNotFound, http.StatusNotFound, CodeRunNotFound),
		sentinelHandler(domain.ErrInvalidLabel, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrNoRuns, http.StatusNotFound, CodeNoRuns),
		sentinelHandler(domain.ErrNoLabeledRuns, http.StatusBadRequest, CodeNoLabeledRuns),
		sentinelHandler(domain.ErrIndexEmpty, http.StatusConflict, CodeIndexEmpty),
		sentinelHandler(domain.ErrEmbeddingProviderError,
			http.StatusBadGateway, CodeEmbeddingProviderError),
	}
	return s
}

// Routes mounts every endpoint on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/api/query", s.HandleQuery)
	r.Get("/api/runs", s.ListRuns)
	r.Patch("/api/runs/{run_id}", s.PatchRun)
	r.Delete("/api/runs", s.ClearRuns)
	r.Get("/api/export", s.ExportDataset)
	r.Post("/api/rebuild", s.Rebuild)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type queryRequest struct {
	Query        string `json:"query"`
	TopK         int    `json:"top_k"`
	UseFinetuned *bool  `json:"use_finetuned,omitempty"`
	ForceModel   string `json:"force_model,omitempty"`
	Rerank       bool   `json:"rerank,omitempty"`
}

// HandleQuery handles POST /api/query.
func (s *Server) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := s.query.Ask(r.Context(), query.Request{
		Query:        req.Query,
		TopK:         req.TopK,
		UseFinetuned: req.UseFinetuned,
		ForceModel:   req.ForceModel,
		Rerank:       req.Rerank,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type runListResponse struct {
	Runs  []domain.RunRecord `json:"runs"`
	Count int                `json:"count"`
}

// ListRuns handles GET /api/runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, "limit must be an integer")
			return
		}
		limit = n
	}

	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if runs == nil {
		runs = []domain.RunRecord{}
	}

	writeJSON(w, http.StatusOK, runListResponse{Runs: runs, Count: len(runs)})
}

type patchRunRequest struct {
	Label *string `json:"label"`
	Notes *string `json:"notes"`
}

// PatchRun handles PATCH /api/runs/{run_id}.
func (s *Server) PatchRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")

	var req patchRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Label == nil && req.Notes == nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "label or notes is required")
		return
	}

	rec, err := s.runs.Patch(r.Context(), runID, runloguc.PatchRequest{
		Label: req.Label,
		Notes: req.Notes,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

type clearRunsResponse struct {
	Cleared int `json:"cleared"`
}

// ClearRuns handles DELETE /api/runs.
func (s *Server) ClearRuns(w http.ResponseWriter, r *http.Request) {
	n, err := s.runs.Clear(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, clearRunsResponse{Cleared: n})
}

// ExportDataset handles GET /api/export. The body is NDJSON, one training
// example per line.
func (s *Server) ExportDataset(w http.ResponseWriter, r *http.Request) {
	examples, err := s.export.Export(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	for i := range examples {
		_ = enc.Encode(&examples[i])
	}
}

// Rebuild handles POST /api/rebuild.
func (s *Server) Rebuild(w http.ResponseWriter, r *http.Request) {
	result, err := s.index.Build(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Checks: map[string]string{"database": "ok"},
	}
	status := http.StatusOK

	if err := s.pinger.Ping(r.Context()); err != nil {
		resp.Status = "unhealthy"
		resp.Checks["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrRunNotFound,
		domain.ErrInvalidLabel,
		domain.ErrNoRuns,
		domain.ErrNoLabeledRuns,
		domain.ErrIndexEmpty,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
