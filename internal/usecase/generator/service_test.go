package generator

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/faithful-rag/ragserve/internal/domain"
	"github.com/faithful-rag/ragserve/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

// mockChat implements ChatCompleter with per-model behavior.
type mockChat struct {
	answers map[string]string
	errs    map[string]error
	calls   []string
}

func (m *mockChat) Complete(_ context.Context, model, _, _ string) (string, error) {
	m.calls = append(m.calls, model)
	if err, ok := m.errs[model]; ok {
		return "", err
	}
	return m.answers[model], nil
}

func testChunks() []domain.RetrievedChunk {
	d := 0.2
	return []domain.RetrievedChunk{
		domain.NewRetrievedChunk(domain.Chunk{Source: "a.md", Seq: 0, Text: "alpha text"}, &d),
		domain.NewRetrievedChunk(domain.Chunk{Source: "b.md", Seq: 3, Text: "beta text"}, nil),
	}
}

func testConfig() Config {
	return Config{
		BaseModel:             "base-model",
		FinetunedModel:        "ft-model",
		UseFinetunedByDefault: true,
	}
}

func TestGenerate_PrimarySucceeds(t *testing.T) {
	chat := &mockChat{answers: map[string]string{"ft-model": "grounded answer [1]"}}
	svc := New(chat, testConfig(), zap.NewNop())

	res := svc.Generate(context.Background(), "what is alpha?", testChunks(), Options{})

	if res.Model != "ft-model" {
		t.Errorf("model = %s, expected ft-model", res.Model)
	}
	if !strings.HasPrefix(res.Answer, "grounded answer [1]") {
		t.Errorf("unexpected answer: %q", res.Answer)
	}
	if !strings.Contains(res.Answer, "Sources:\n[1] a.md (chunk 0)\n[2] b.md (chunk 3)") {
		t.Errorf("expected appended sources list, got: %q", res.Answer)
	}
	if len(chat.calls) != 1 {
		t.Errorf("expected 1 model call, got %v", chat.calls)
	}
}

func TestGenerate_FallbackToBase(t *testing.T) {
	chat := &mockChat{
		errs:    map[string]error{"ft-model": errors.New("rate limited")},
		answers: map[string]string{"base-model": "base answer"},
	}
	svc := New(chat, testConfig(), zap.NewNop())

	res := svc.Generate(context.Background(), "q", testChunks(), Options{})

	// The recorded model must be the tier that actually answered.
	if res.Model != "base-model" {
		t.Errorf("model = %s, expected base-model", res.Model)
	}
	if len(chat.calls) != 2 {
		t.Errorf("expected 2 model calls, got %v", chat.calls)
	}
}

func TestGenerate_AllTiersFail_Offline(t *testing.T) {
	chat := &mockChat{errs: map[string]error{
		"ft-model":   errors.New("down"),
		"base-model": errors.New("down"),
	}}
	svc := New(chat, testConfig(), zap.NewNop())

	res := svc.Generate(context.Background(), "what is alpha?", testChunks(), Options{})

	if res.Model != OfflineModel {
		t.Errorf("model = %s, expected %s", res.Model, OfflineModel)
	}
	if !strings.HasPrefix(res.Answer, "Using only the provided context, here is a concise answer.") {
		t.Errorf("unexpected offline preamble: %q", res.Answer)
	}
	if !strings.Contains(res.Answer, "Question: what is alpha?") {
		t.Errorf("offline answer missing question: %q", res.Answer)
	}
	if !strings.Contains(res.Answer, "Sources:\n[1] a.md (chunk 0)") {
		t.Errorf("offline answer missing sources: %q", res.Answer)
	}
}

func TestGenerate_NoClient_Offline(t *testing.T) {
	svc := New(nil, testConfig(), zap.NewNop())

	res := svc.Generate(context.Background(), "q", nil, Options{})

	if res.Model != OfflineModel {
		t.Errorf("model = %s, expected %s", res.Model, OfflineModel)
	}
	if res.Answer == "" {
		t.Error("offline answer must never be empty")
	}
}

func TestGenerate_ForceModel(t *testing.T) {
	chat := &mockChat{answers: map[string]string{"custom-model": "forced answer"}}
	svc := New(chat, testConfig(), zap.NewNop())

	res := svc.Generate(context.Background(), "q", testChunks(), Options{ForceModel: "custom-model"})

	if res.Model != "custom-model" {
		t.Errorf("model = %s, expected custom-model", res.Model)
	}
	if len(chat.calls) != 1 || chat.calls[0] != "custom-model" {
		t.Errorf("unexpected calls: %v", chat.calls)
	}
}

func TestGenerate_UseFinetunedFalse_SkipsFT(t *testing.T) {
	chat := &mockChat{errs: map[string]error{"base-model": errors.New("down")}}
	svc := New(chat, testConfig(), zap.NewNop())

	useFT := false
	res := svc.Generate(context.Background(), "q", testChunks(), Options{UseFinetuned: &useFT})

	// Primary is already the base model, so the base tier must not repeat it.
	if len(chat.calls) != 1 || chat.calls[0] != "base-model" {
		t.Errorf("unexpected calls: %v", chat.calls)
	}
	if res.Model != OfflineModel {
		t.Errorf("model = %s, expected %s", res.Model, OfflineModel)
	}
}

func TestGenerate_EmptyResponseIsTierFailure(t *testing.T) {
	chat := &mockChat{answers: map[string]string{
		"ft-model":   "   ",
		"base-model": "real answer",
	}}
	svc := New(chat, testConfig(), zap.NewNop())

	res := svc.Generate(context.Background(), "q", testChunks(), Options{})

	if res.Model != "base-model" {
		t.Errorf("model = %s, expected base-model", res.Model)
	}
}

func TestGenerate_NoChunks_NoSourcesHeader(t *testing.T) {
	chat := &mockChat{answers: map[string]string{"ft-model": "answer without context"}}
	svc := New(chat, testConfig(), zap.NewNop())

	res := svc.Generate(context.Background(), "q", nil, Options{})

	if strings.Contains(res.Answer, "Sources:") {
		t.Errorf("expected no sources header for empty chunk list, got: %q", res.Answer)
	}
}

func TestContextBlock_Format(t *testing.T) {
	block := ContextBlock(testChunks())
	want := "[1] (a.md#0) alpha text\n\n[2] (b.md#3) beta text"
	if block != want {
		t.Errorf("context block = %q, expected %q", block, want)
	}
}

func TestUserMessage_Format(t *testing.T) {
	msg := UserMessage("why?", testChunks()[:1])
	want := "Question: why?\n\nContext items:\n\n[1] (a.md#0) alpha text"
	if msg != want {
		t.Errorf("user message = %q, expected %q", msg, want)
	}
}

func TestOfflineAnswer_TruncatesContext(t *testing.T) {
	long := strings.Repeat("word ", 600)
	chunks := []domain.RetrievedChunk{
		domain.NewRetrievedChunk(domain.Chunk{Source: "big.md", Seq: 0, Text: long}, nil),
	}

	answer := offlineAnswer("q", chunks)

	start := strings.Index(answer, "Context (truncated):\n")
	end := strings.Index(answer, "\n\nSources:")
	if start < 0 || end < 0 {
		t.Fatalf("unexpected offline answer shape: %q", answer)
	}
	contextPart := answer[start+len("Context (truncated):\n") : end]
	if len(contextPart) > offlineContextLimit {
		t.Errorf("context part is %d chars, expected at most %d", len(contextPart), offlineContextLimit)
	}
}

func TestOfflineAnswer_TruncationKeepsValidUTF8(t *testing.T) {
	// Multi-byte runes positioned so a byte-wise cut at the limit would
	// split one in half: the leading "a" puts every rune start on an odd
	// byte offset.
	long := "a" + strings.Repeat("é", offlineContextLimit)
	chunks := []domain.RetrievedChunk{
		domain.NewRetrievedChunk(domain.Chunk{Source: "big.md", Seq: 0, Text: long}, nil),
	}

	answer := offlineAnswer("q", chunks)

	if !utf8.ValidString(answer) {
		t.Fatal("offline answer contains invalid UTF-8 after truncation")
	}
}

func TestTruncateRunes(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"shorter than limit", "abc", 10, "abc"},
		{"exact limit", "abcd", 4, "abcd"},
		{"ascii cut", "abcdef", 4, "abcd"},
		{"cut inside rune backs up", "abé", 3, "ab"},
		{"multibyte boundary kept", "éé", 2, "é"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := truncateRunes(tc.in, tc.limit)
			if got != tc.want {
				t.Errorf("truncateRunes(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("result is not valid UTF-8: %q", got)
			}
		})
	}
}
