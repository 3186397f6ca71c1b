package domain

import (
	"errors"
	"testing"
)

func TestDetectDocumentKind(t *testing.T) {
	cases := map[string]DocumentKind{
		"https://example.com/file.pdf":          KindPDF,
		"https://example.com/file.PDF?x=1&y=2":  KindPDF,
		"report.docx":                           KindDOCX,
		"slides.pptx":                           KindPPTX,
		"photo.jpeg":                            KindImage,
		"notes.md":                              KindText,
		"page.html?token=abc":                   KindHTML,
		"no-extension":                          KindUnknown,
		"archive.tar.gz":                        KindUnknown,
	}
	for ref, want := range cases {
		if got := DetectDocumentKind(ref); got != want {
			t.Errorf("DetectDocumentKind(%q) = %q, want %q", ref, got, want)
		}
	}
}

func TestDetectDocumentKindIgnoresQueryParams(t *testing.T) {
	a := DetectDocumentKind("https://example.com/doc.pdf")
	b := DetectDocumentKind("https://example.com/doc.pdf?download=true&v=2")
	if a != b {
		t.Fatalf("expected query params to not affect detection: %q vs %q", a, b)
	}
}

func TestValidateQuestionMultipleChoiceRequiresOptions(t *testing.T) {
	q := Question{Kind: KindMultipleChoice}
	err := ValidateQuestion(q)
	if !errors.Is(err, ErrMissingOptions) {
		t.Fatalf("expected ErrMissingOptions, got %v", err)
	}
}

func TestValidateQuestionNonMCQRejectsOptions(t *testing.T) {
	q := Question{Kind: KindTrueFalse, Options: map[string]string{"A": "true"}}
	err := ValidateQuestion(q)
	if !errors.Is(err, ErrUnexpectedOptions) {
		t.Fatalf("expected ErrUnexpectedOptions, got %v", err)
	}
}

func TestValidateQuestionInvalidKind(t *testing.T) {
	q := Question{Kind: QuestionKind("essay")}
	err := ValidateQuestion(q)
	if !errors.Is(err, ErrInvalidQuestionKind) {
		t.Fatalf("expected ErrInvalidQuestionKind, got %v", err)
	}
}

func TestValidateQuestionValidMCQ(t *testing.T) {
	q := Question{Kind: KindMultipleChoice, Options: map[string]string{"A": "1", "B": "2"}}
	if err := ValidateQuestion(q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateQuestionValidOpenEnded(t *testing.T) {
	q := Question{Kind: KindOpenEnded}
	if err := ValidateQuestion(q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateClassificationClosedSets(t *testing.T) {
	bad := Question{Difficulty: Difficulty("impossible")}
	if err := ValidateClassification(bad); !errors.Is(err, ErrInvalidDifficulty) {
		t.Fatalf("expected ErrInvalidDifficulty, got %v", err)
	}

	bad = Question{CognitiveLevel: CognitiveLevel("guessing")}
	if err := ValidateClassification(bad); !errors.Is(err, ErrInvalidCognitiveLevel) {
		t.Fatalf("expected ErrInvalidCognitiveLevel, got %v", err)
	}

	ok := Question{Difficulty: DifficultyHard, CognitiveLevel: CognitiveAnalysis}
	if err := ValidateClassification(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateClassificationAllowsUnset(t *testing.T) {
	if err := ValidateClassification(Question{}); err != nil {
		t.Fatalf("unset classification fields should pass: %v", err)
	}
}

func TestValidateEmbeddingDimensionMismatch(t *testing.T) {
	err := ValidateEmbedding([]float32{1, 2, 3}, 4)
	if !errors.Is(err, ErrEmbeddingDimMismatch) {
		t.Fatalf("expected ErrEmbeddingDimMismatch, got %v", err)
	}
}

func TestValidateEmbeddingMatchingDimension(t *testing.T) {
	if err := ValidateEmbedding([]float32{1, 2, 3, 4}, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIsClassifiedDerivedFromTopic(t *testing.T) {
	if IsClassified(Question{}) {
		t.Fatal("expected unclassified question without topic")
	}
	if !IsClassified(Question{Topic: "math"}) {
		t.Fatal("expected classified question with topic set")
	}
}

func TestValidationErrorUnwrapAndMessage(t *testing.T) {
	err := NewValidationError("difficulty", "impossible", ErrInvalidDifficulty)
	if !errors.Is(err, ErrInvalidDifficulty) {
		t.Fatal("expected Unwrap to expose sentinel")
	}
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestJobStatusTerminal(t *testing.T) {
	terminal := []JobStatus{StatusCompleted, StatusFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %q to be terminal", s)
		}
	}
	nonTerminal := []JobStatus{StatusQueued, StatusIngesting, StatusParsing, StatusValidating, StatusPersisting, StatusClassifying, StatusVectorizing}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("expected %q to not be terminal", s)
		}
	}
}
