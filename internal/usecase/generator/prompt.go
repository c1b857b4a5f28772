package generator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/faithful-rag/ragserve/internal/domain"
)

// SystemInstruction is the shared system prompt. The dataset exporter emits
// the identical text so fine-tuning examples match what the model sees at
// answer time.
const SystemInstruction = "You are a careful instructor for a Retrieval-Augmented Generation (RAG) system. " +
	"Explain concepts clearly and step by step using ONLY the provided context. " +
	"If something is not supported by the context, explicitly say you don't have enough information. " +
	"First write a short 1-2 sentence summary, then a few concise bullet points. " +
	"Always include inline citations like [1], [2] that refer to the provided context items."

// offlineContextLimit bounds how much raw context the template answer quotes.
const offlineContextLimit = 1200

// ContextBlock renders chunks as numbered context items for the model:
// "[1] (source#chunk) text", one per chunk, in retrieval order.
func ContextBlock(chunks []domain.RetrievedChunk) string {
	lines := make([]string, 0, len(chunks))
	for i, c := range chunks {
		lines = append(lines, fmt.Sprintf("[%d] (%s#%d) %s", i+1, c.Source, c.Seq, c.Text))
	}
	return strings.Join(lines, "\n\n")
}

// SourcesBlock renders the human-readable citation list appended under answers.
func SourcesBlock(chunks []domain.RetrievedChunk) string {
	lines := make([]string, 0, len(chunks))
	for i, c := range chunks {
		lines = append(lines, fmt.Sprintf("[%d] %s (chunk %d)", i+1, c.Source, c.Seq))
	}
	return strings.Join(lines, "\n")
}

// UserMessage renders the user prompt: the question followed by the numbered
// context block.
func UserMessage(query string, chunks []domain.RetrievedChunk) string {
	return fmt.Sprintf("Question: %s\n\nContext items:\n\n%s", query, ContextBlock(chunks))
}

// offlineAnswer is the deterministic last-resort template. It never calls a
// model and always yields a non-empty string.
func offlineAnswer(query string, chunks []domain.RetrievedChunk) string {
	numbered := make([]string, 0, len(chunks))
	for i, c := range chunks {
		numbered = append(numbered, fmt.Sprintf("[%d] %s", i+1, c.Text))
	}
	context := truncateRunes(strings.Join(numbered, "\n\n"), offlineContextLimit)

	return fmt.Sprintf(
		"Using only the provided context, here is a concise answer.\n\n"+
			"Question: %s\n\n"+
			"Context (truncated):\n%s\n\n"+
			"Sources:\n%s",
		query, context, SourcesBlock(chunks))
}

// truncateRunes cuts s to at most limit bytes without splitting a rune.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
