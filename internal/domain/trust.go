package domain

// TrustScore computes the 0-99 observability heuristic for a retrieval set:
// a base of 60 plus up to 20 points for chunk count and up to 20 for source
// diversity. Zero when nothing was retrieved. Not a correctness measure.
func TrustScore(chunks []RetrievedChunk) int {
	if len(chunks) == 0 {
		return 0
	}

	sources := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		sources[c.Source] = struct{}{}
	}

	score := 60 + min(len(chunks)*5, 20) + min(len(sources)*5, 20)
	return max(0, min(99, score))
}
