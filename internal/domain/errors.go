package domain

import "errors"

// Sentinel errors returned by services and mapped to HTTP statuses in transport.
var (
	// ErrEmptyQuery rejects blank or whitespace-only questions.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrInvalidLabel rejects label values outside the known enum.
	ErrInvalidLabel = errors.New("invalid label")

	// ErrRunNotFound is returned when a run_id does not exist in the log.
	ErrRunNotFound = errors.New("run not found")

	// ErrNoRuns is returned when an export is requested over an empty log.
	ErrNoRuns = errors.New("no runs recorded")

	// ErrNoLabeledRuns is returned when no run in the log carries a valid label.
	ErrNoLabeledRuns = errors.New("no labeled runs")

	// ErrIndexEmpty is returned when retrieval runs before any index build.
	ErrIndexEmpty = errors.New("index is empty")

	// ErrEmbeddingProviderError marks upstream embedding API failures (502).
	ErrEmbeddingProviderError = errors.New("embedding provider error")

	// ErrModelUnavailable marks a generation tier with no usable client or model.
	ErrModelUnavailable = errors.New("model unavailable")
)
