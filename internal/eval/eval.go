// Package eval provides retrieval quality helpers over per-chunk relevance
// judgments: true means the chunk at that rank was judged relevant.
package eval

// PrecisionAtK is the share of the first k ranks that are relevant.
// Ranks beyond the judged list count as irrelevant: the divisor stays k.
func PrecisionAtK(labels []bool, k int) float64 {
	if len(labels) == 0 || k <= 0 {
		return 0
	}

	top := k
	if top > len(labels) {
		top = len(labels)
	}
	hits := 0
	for _, relevant := range labels[:top] {
		if relevant {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

// RecallAtK is the share of all relevant chunks found in the first k ranks.
func RecallAtK(labels []bool, k int) float64 {
	if len(labels) == 0 || k <= 0 {
		return 0
	}

	total := 0
	for _, relevant := range labels {
		if relevant {
			total++
		}
	}
	if total == 0 {
		return 0
	}

	if k > len(labels) {
		k = len(labels)
	}
	hits := 0
	for _, relevant := range labels[:k] {
		if relevant {
			hits++
		}
	}
	return float64(hits) / float64(total)
}
