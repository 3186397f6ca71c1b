package pipeline

import (
	"context"
	"testing"

	"github.com/documently/docuflow/engine/domain"
)

func TestClassificationRunSkipsWhenNoQuestions(t *testing.T) {
	c := NewClassification(nil, nil, nil, nil, "")
	state := NewState("job-1", "user-1", "ref")

	// No QuestionIDs: Run must return without touching the pool/store,
	// which are nil here and would panic on first use.
	c.Run(context.Background(), state)

	if _, ok := state.Metadata["classification_error"]; ok {
		t.Fatal("expected no classification error when there is nothing to classify")
	}
}

func TestApplyClassificationEntry(t *testing.T) {
	q := &domain.Question{}
	entry := map[string]any{
		"topic":           "math",
		"subtopic":        "algebra",
		"difficulty":      "hard",
		"grade_level":     "9",
		"cognitive_level": "analysis",
		"tags":            []any{"equations", "variables"},
	}
	applyClassificationEntry(q, entry)

	if q.Topic != "math" || q.Subtopic != "algebra" {
		t.Fatalf("unexpected topic/subtopic: %+v", q)
	}
	if q.Difficulty != domain.DifficultyHard {
		t.Fatalf("unexpected difficulty: %v", q.Difficulty)
	}
	if q.CognitiveLevel != domain.CognitiveAnalysis {
		t.Fatalf("unexpected cognitive level: %v", q.CognitiveLevel)
	}
	if len(q.Tags) != 2 || q.Tags[0] != "equations" {
		t.Fatalf("unexpected tags: %v", q.Tags)
	}
}

func TestApplyClassificationEntryIgnoresUnknownFields(t *testing.T) {
	q := &domain.Question{Topic: "preset"}
	applyClassificationEntry(q, map[string]any{"unrelated": 42})
	if q.Topic != "preset" {
		t.Fatalf("expected topic to remain unchanged, got %q", q.Topic)
	}
}

func TestBuildQuestionsBlockTruncatesLongText(t *testing.T) {
	longText := make([]byte, maxClassificationTextChars+50)
	for i := range longText {
		longText[i] = 'a'
	}
	questions := []domain.Question{{ID: "q1", Kind: domain.KindOpenEnded, Text: string(longText)}}

	block := buildQuestionsBlock(questions)
	if len(block) == 0 {
		t.Fatal("expected non-empty block")
	}
	if !containsTruncationSuffix(block) {
		t.Fatal("expected truncated text to end with an ellipsis marker")
	}
}

func containsTruncationSuffix(s string) bool {
	for i := 0; i < len(s); i++ {
		if i+4 <= len(s) && s[i:i+4] == "...\n" {
			return true
		}
	}
	return len(s) > 0 && s[len(s)-1] == '.'
}
