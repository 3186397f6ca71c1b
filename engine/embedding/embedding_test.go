package embedding

import (
	"context"
	"errors"
	"testing"
)

func TestBuildQuestionTextPlain(t *testing.T) {
	q := Question{Text: "What is the capital of France?"}
	got := BuildQuestionText(q)
	if got != "What is the capital of France?" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestBuildQuestionTextWithContextAndOptions(t *testing.T) {
	q := Question{
		Text:       "What is 2+2?",
		Topic:      "math",
		Subtopic:   "arithmetic",
		Difficulty: "easy",
		GradeLevel: "3",
		Tags:       []string{"addition", "basics"},
		Options:    map[string]string{"B": "3", "A": "4"},
	}
	got := BuildQuestionText(q)
	want := "[math | arithmetic | easy difficulty | grade 3]\nKeywords: addition, basics\nWhat is 2+2?\nA) 4\nB) 3"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestBuildQuestionTextTruncatesTagsToFive(t *testing.T) {
	q := Question{Text: "Q", Tags: []string{"a", "b", "c", "d", "e", "f"}}
	got := BuildQuestionText(q)
	want := "Keywords: a, b, c, d, e\nQ"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildQuestionTextIsPure(t *testing.T) {
	q := Question{Text: "Same question", Tags: []string{"x"}}
	if BuildQuestionText(q) != BuildQuestionText(q) {
		t.Fatal("expected BuildQuestionText to be pure/deterministic")
	}
}

type fakeProvider struct {
	embedTextCalls  int
	embedTextsCalls int
	dims            int
	failTimes       int
}

func (f *fakeProvider) EmbedText(ctx context.Context, text string) (Vector, error) {
	f.embedTextCalls++
	if f.embedTextCalls <= f.failTimes {
		return nil, errors.New("transient failure")
	}
	return make(Vector, f.dims), nil
}

func (f *fakeProvider) EmbedTexts(ctx context.Context, texts []string) ([]Vector, error) {
	f.embedTextsCalls++
	out := make([]Vector, len(texts))
	for i := range texts {
		out[i] = make(Vector, f.dims)
	}
	return out, nil
}

func (f *fakeProvider) Dimensions() int { return f.dims }

func TestEmbedTextsRetryingEmptyInputSkipsProvider(t *testing.T) {
	p := &fakeProvider{dims: 4}
	vecs, err := EmbedTextsRetrying(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 0 {
		t.Fatalf("expected empty result, got %d", len(vecs))
	}
	if p.embedTextCalls != 0 || p.embedTextsCalls != 0 {
		t.Fatal("provider should not have been called for empty input")
	}
}

func TestEmbedTextRetryingRecoversFromTransientFailure(t *testing.T) {
	p := &fakeProvider{dims: 8, failTimes: 1}
	vec, err := EmbedTextRetrying(context.Background(), p, "hello")
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if len(vec) != 8 {
		t.Fatalf("expected 8-dim vector, got %d", len(vec))
	}
}
