package feedback

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/hitoshi/newstalk/internal/llm"
	"github.com/hitoshi/newstalk/internal/model"
)

type mockCompleter struct {
	completeFn func(ctx context.Context, req llm.Request) (string, error)
	calls      int
	last       llm.Request
}

func (m *mockCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	m.calls++
	m.last = req
	return m.completeFn(ctx, req)
}

func respond(text string) *mockCompleter {
	return &mockCompleter{completeFn: func(ctx context.Context, req llm.Request) (string, error) {
		return text, nil
	}}
}

type mockRecorder struct {
	categories []string
	degraded   []string
}

func (m *mockRecorder) RecordFeedbackCategory(category string) {
	m.categories = append(m.categories, category)
}

func (m *mockRecorder) RecordFeedbackDegraded(reason string) {
	m.degraded = append(m.degraded, reason)
}

func newTestAnalyzer(c llm.Completer, rec *mockRecorder) (*Analyzer, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewAnalyzer(c, slog.New(slog.NewJSONHandler(&buf, nil)), rec), &buf
}

const oneItem = `{"original_sentence": "I go to school yesterday.", "corrected_sentence": "I went to school yesterday.", "category": "Grammar", "reason": "過去の出来事なので過去形にします"}`

func TestAnalyze_DecodesShapes(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"top-level array", "[" + oneItem + "]"},
		{"feedback key", `{"feedback": [` + oneItem + `]}`},
		{"feedback_items key", `{"feedback_items": [` + oneItem + `]}`},
		{"sentences key", `{"sentences": [` + oneItem + `]}`},
		{"items key", `{"items": [` + oneItem + `]}`},
		{"code fence", "```json\n[" + oneItem + "]\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAnalyzer(respond(tt.content), nil)
			got := a.Analyze(context.Background(), "I go to school yesterday.")
			if len(got) != 1 {
				t.Fatalf("len = %d, want 1", len(got))
			}
			if got[0].CorrectedSentence != "I went to school yesterday." {
				t.Errorf("corrected = %q", got[0].CorrectedSentence)
			}
			if got[0].Category != model.CategoryGrammar {
				t.Errorf("category = %q", got[0].Category)
			}
			if got[0].Status != model.FeedbackStatusNew {
				t.Errorf("status = %q, want New", got[0].Status)
			}
		})
	}
}

// 複数のラッパーキーがある場合はfeedbackが優先されることを検証
func TestAnalyze_WrapperKeyPriority(t *testing.T) {
	content := `{
		"items": [{"original_sentence": "a", "corrected_sentence": "b", "category": "Vocabulary", "reason": "items"}],
		"sentences": [{"original_sentence": "a", "corrected_sentence": "b", "category": "Vocabulary", "reason": "sentences"}],
		"feedback": [{"original_sentence": "a", "corrected_sentence": "b", "category": "Vocabulary", "reason": "feedback"}]
	}`
	a, _ := newTestAnalyzer(respond(content), nil)

	got := a.Analyze(context.Background(), "text")
	if len(got) != 1 || got[0].Reason != "feedback" {
		t.Errorf("got %+v, want the item under the feedback key", got)
	}
}

// 先頭のキーが配列でなければ次のキーを試すことを検証
func TestAnalyze_SkipsNonListWrapper(t *testing.T) {
	content := `{"feedback": "none", "items": [` + oneItem + `]}`
	a, _ := newTestAnalyzer(respond(content), nil)

	if got := a.Analyze(context.Background(), "text"); len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func TestAnalyze_EmptyListIsSuccess(t *testing.T) {
	rec := &mockRecorder{}
	a, _ := newTestAnalyzer(respond(`{"feedback": []}`), rec)

	got := a.Analyze(context.Background(), "This is a perfect sentence.")
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
	if len(rec.degraded) != 0 {
		t.Errorf("empty feedback is not a degradation, got %v", rec.degraded)
	}
}

func TestAnalyze_DegradesToEmpty(t *testing.T) {
	tests := []struct {
		name       string
		completer  *mockCompleter
		wantReason string
	}{
		{
			name: "model error",
			completer: &mockCompleter{completeFn: func(ctx context.Context, req llm.Request) (string, error) {
				return "", errors.New("rate limited")
			}},
			wantReason: "model_error",
		},
		{name: "malformed json", completer: respond(`{"feedback": [`), wantReason: "unrecognized_output"},
		{name: "unknown wrapper", completer: respond(`{"corrections": [` + oneItem + `]}`), wantReason: "unrecognized_output"},
		{name: "plain text", completer: respond("Great job!"), wantReason: "unrecognized_output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockRecorder{}
			a, buf := newTestAnalyzer(tt.completer, rec)

			got := a.Analyze(context.Background(), "some text")
			if got == nil || len(got) != 0 {
				t.Errorf("got %v, want empty non-nil slice", got)
			}
			if len(rec.degraded) != 1 || rec.degraded[0] != tt.wantReason {
				t.Errorf("degraded = %v, want [%s]", rec.degraded, tt.wantReason)
			}
			if !strings.Contains(buf.String(), tt.wantReason) {
				t.Errorf("log should mention %q: %s", tt.wantReason, buf.String())
			}
		})
	}
}

func TestAnalyze_NormalizesAndDropsInvalidItems(t *testing.T) {
	content := `[
		{"original_sentence": "He have a car.", "corrected_sentence": "He has a car.", "category": "grammar", "reason": "三人称単数"},
		{"original_sentence": "I am boring.", "corrected_sentence": "I am bored.", "category": " EXPRESSION ", "reason": "意味が変わります"},
		{"original_sentence": "x", "corrected_sentence": "y", "category": "Spelling", "reason": "未知のカテゴリ"},
		{"original_sentence": "", "corrected_sentence": "y", "category": "Grammar", "reason": "元の文なし"},
		{"original_sentence": "x", "corrected_sentence": "  ", "category": "Grammar", "reason": "修正文なし"}
	]`
	rec := &mockRecorder{}
	a, _ := newTestAnalyzer(respond(content), rec)

	got := a.Analyze(context.Background(), "He have a car. I am boring.")
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	if got[0].Category != model.CategoryGrammar || got[1].Category != model.CategoryExpression {
		t.Errorf("categories = %q, %q", got[0].Category, got[1].Category)
	}
	if len(rec.categories) != 2 || rec.categories[0] != "Grammar" || rec.categories[1] != "Expression" {
		t.Errorf("recorded categories = %v", rec.categories)
	}
}

func TestAnalyze_EmptyTranscriptSkipsModel(t *testing.T) {
	c := respond("[]")
	a, _ := newTestAnalyzer(c, nil)

	got := a.Analyze(context.Background(), "   ")
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
	if c.calls != 0 {
		t.Errorf("model should not be called, calls = %d", c.calls)
	}
}

func TestAnalyze_RequestsJSONWithTranscript(t *testing.T) {
	c := respond("[]")
	a, _ := newTestAnalyzer(c, nil)

	a.Analyze(context.Background(), "My name is Shirota.")
	if !c.last.JSON {
		t.Error("feedback request should ask for JSON output")
	}
	if c.last.Op != "feedback" {
		t.Errorf("op = %q", c.last.Op)
	}
	if !strings.Contains(c.last.Messages[1].Content, "My name is Shirota.") {
		t.Error("prompt should contain the transcript")
	}
}
