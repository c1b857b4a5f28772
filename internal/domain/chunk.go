package domain

import "fmt"

// Chunk is the immutable unit of indexed text: a word window of a source
// document. Seq is a single counter shared across all files of one index
// build, so Source+Seq identifies a chunk corpus-wide.
type Chunk struct {
	Source string `json:"source"`
	Seq    int    `json:"chunk"`
	Text   string `json:"text"`
}

// ID renders the corpus-wide chunk identifier.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s::%d", c.Source, c.Seq)
}

// Relevance is a coarse similarity bucket derived from cosine distance.
type Relevance string

const (
	RelevanceRelated  Relevance = "related"
	RelevanceSomewhat Relevance = "somewhat related"
	RelevanceOffTopic Relevance = "off-topic"
	RelevanceUnknown  Relevance = "unknown"
)

// Distance thresholds for relevance buckets.
const (
	RelatedMaxDistance  = 0.35
	SomewhatMaxDistance = 0.65
)

// RelevanceFor maps a cosine distance (smaller = more similar) to a bucket.
// A nil distance means the store returned no score.
func RelevanceFor(distance *float64) Relevance {
	switch {
	case distance == nil:
		return RelevanceUnknown
	case *distance < RelatedMaxDistance:
		return RelevanceRelated
	case *distance < SomewhatMaxDistance:
		return RelevanceSomewhat
	default:
		return RelevanceOffTopic
	}
}

// RetrievedChunk is a Chunk annotated with its retrieval distance and the
// derived relevance bucket. Distance is optional: nil when the store did
// not report one.
type RetrievedChunk struct {
	Chunk
	Distance  *float64  `json:"distance,omitempty"`
	Relevance Relevance `json:"relevance"`
}

// NewRetrievedChunk attaches a distance to a chunk and derives relevance.
func NewRetrievedChunk(c Chunk, distance *float64) RetrievedChunk {
	return RetrievedChunk{
		Chunk:     c,
		Distance:  distance,
		Relevance: RelevanceFor(distance),
	}
}

// IndexEntry is a Chunk plus its embedding, owned by the index store.
// Entries are created during a build and dropped en masse on rebuild.
type IndexEntry struct {
	Chunk
	Vector []float32
}
