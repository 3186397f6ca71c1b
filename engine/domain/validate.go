package domain

import (
	"fmt"
	"path"
	"strings"
)

// DetectDocumentKind derives a DocumentKind from a filename or URL path.
// Query parameters are stripped before inspection, and the result depends
// only on the path portion.
func DetectDocumentKind(ref string) DocumentKind {
	clean := ref
	if idx := strings.IndexByte(clean, '?'); idx != -1 {
		clean = clean[:idx]
	}
	ext := strings.ToLower(path.Ext(clean))
	if kind, ok := extensionKinds[ext]; ok {
		return kind
	}
	return KindUnknown
}

// ValidateQuestion checks the options/kind invariant described for the
// Question data model: options are present iff kind is multiple_choice.
func ValidateQuestion(q Question) error {
	if !validQuestionKinds[q.Kind] {
		return NewValidationError("question_type", string(q.Kind), ErrInvalidQuestionKind)
	}
	if q.Kind == KindMultipleChoice && len(q.Options) == 0 {
		return NewValidationError("options", "", ErrMissingOptions)
	}
	if q.Kind != KindMultipleChoice && len(q.Options) > 0 {
		return NewValidationError("options", fmt.Sprintf("%d entries", len(q.Options)), ErrUnexpectedOptions)
	}
	return nil
}

// ValidateClassification checks that classification fields, once set,
// are drawn from their closed sets.
func ValidateClassification(q Question) error {
	if q.Difficulty != "" && !validDifficulties[q.Difficulty] {
		return NewValidationError("difficulty", string(q.Difficulty), ErrInvalidDifficulty)
	}
	if q.CognitiveLevel != "" && !validCognitiveLevels[q.CognitiveLevel] {
		return NewValidationError("cognitive_level", string(q.CognitiveLevel), ErrInvalidCognitiveLevel)
	}
	return nil
}

// ValidateEmbedding checks that an embedding vector matches the configured
// dimension before it is persisted.
func ValidateEmbedding(vec []float32, dimensions int) error {
	if len(vec) != dimensions {
		return NewValidationError("embedding", fmt.Sprintf("len=%d", len(vec)), ErrEmbeddingDimMismatch)
	}
	return nil
}

// IsClassified reports the data model's derived invariant: a question is
// classified iff its topic is set.
func IsClassified(q Question) bool { return q.Topic != "" }
