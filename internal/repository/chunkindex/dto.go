package chunkindex

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/faithful-rag/ragserve/internal/db"
	"github.com/faithful-rag/ragserve/internal/domain"
)

// buildHashFields converts an index entry into a flat map[string]string for HSET.
func buildHashFields(entry *domain.IndexEntry) map[string]string {
	return map[string]string{
		"source": entry.Source,
		"chunk":  strconv.Itoa(entry.Seq),
		"text":   entry.Text,
		"vector": vectorToBytes(entry.Vector),
	}
}

// parseSearchEntry converts a KNN search hit back into a retrieved chunk.
func parseSearchEntry(entry *db.SearchEntry) domain.RetrievedChunk {
	seq, _ := strconv.Atoi(entry.Fields["chunk"])

	chunk := domain.Chunk{
		Source: entry.Fields["source"],
		Seq:    seq,
		Text:   entry.Fields["text"],
	}

	var dist *float64
	if entry.HasDistance {
		d := entry.Distance
		dist = &d
	}

	return domain.NewRetrievedChunk(chunk, dist)
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
