// Package pipeline runs a single document through the fixed
// ingestion → parsing → validation → persistence → classification →
// vectorization stage graph, threading a single State record between
// stages.
package pipeline

import "github.com/documently/docuflow/engine/convert"

// State is the in-flight record passed from stage to stage for one job.
// It is never persisted in its entirety and is exclusively owned by the
// orchestrator running a given job — no concurrent mutation.
type State struct {
	// Identity
	JobID  string
	UserID string

	// Input
	SourceRef string
	Filename  string
	Kind      string

	// Working fields
	OutputZipPath    string
	SourceFilePath   string
	OriginalMarkdown string
	CleanedMarkdown  string
	PublicMarkdown   string
	QuestionIDs      []string
	ImageURLMap      map[string]string
	DocumentID       string
	QuestionCount    int

	// Control fields
	Stage              string
	ErrorMessage        string
	Metadata            map[string]any
	ValidationAttempts  int
	ValidationPassed    bool
	MaxAttemptsReached  bool
	ValidationFeedback  string
	ConverterOptions    convert.Options
}

// NewState seeds a State for a fresh job submission.
func NewState(jobID, userID, sourceRef string) *State {
	return &State{
		JobID:     jobID,
		UserID:    userID,
		SourceRef: sourceRef,
		Metadata:  map[string]any{},
	}
}

// RecordError sets the state's error message; it does not alter control
// flow by itself.
func (s *State) RecordError(msg string) {
	s.ErrorMessage = msg
}

// NoContentExtracted reports whether the job produced neither a document
// nor any Markdown — the condition under which the orchestrator emits the
// spec's fixed failure message.
func (s *State) NoContentExtracted() bool {
	return s.DocumentID == "" && s.OriginalMarkdown == "" && s.CleanedMarkdown == ""
}
