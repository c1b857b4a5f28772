package domain

import "time"

// Label is a human judgment attached to a run after the fact.
type Label string

const (
	LabelGood       Label = "good"
	LabelMixed      Label = "mixed"
	LabelOffTopic   Label = "off_topic"
	LabelNoEvidence Label = "no_evidence"
)

// Valid reports whether l is one of the known label values.
func (l Label) Valid() bool {
	switch l {
	case LabelGood, LabelMixed, LabelOffTopic, LabelNoEvidence:
		return true
	}
	return false
}

// RunRecord is the persisted outcome of one question-answer cycle.
// Everything except Label and Notes is immutable after creation.
type RunRecord struct {
	ID         string           `json:"run_id"`
	Timestamp  time.Time        `json:"timestamp"`
	Query      string           `json:"query"`
	Answer     string           `json:"answer"`
	LatencyMS  float64          `json:"latency_ms"`
	TrustScore int              `json:"trust_score"`
	TopK       int              `json:"top_k"`
	Model      string           `json:"model"`
	Label      Label            `json:"label,omitempty"`
	Notes      string           `json:"notes,omitempty"`
	Retrieved  []RetrievedChunk `json:"retrieved"`
}

// Labeled reports whether the record carries a valid label.
func (r *RunRecord) Labeled() bool {
	return r.Label.Valid()
}

// RunPatch is a partial update of the mutable run fields. Nil means
// "leave as is".
type RunPatch struct {
	Label *Label
	Notes *string
}

// Empty reports whether the patch changes nothing.
func (p RunPatch) Empty() bool {
	return p.Label == nil && p.Notes == nil
}
