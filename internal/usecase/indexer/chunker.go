package indexer

import "strings"

// chunkWords splits text into overlapping word windows of size words each,
// advancing by size-overlap words per window (at least one, so degenerate
// overlap settings cannot stall the loop). The final partial window is kept.
func chunkWords(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	stride := size - overlap
	if stride < 1 {
		stride = 1
	}

	var chunks []string
	for i := 0; i < len(words); i += stride {
		end := i + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}
