// Package domain defines the core Job/Document/Question types and the
// validation gate they pass through before persistence.
package domain

import "time"

// JobStatus is the closed set of pipeline stages a Job can occupy.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusIngesting   JobStatus = "ingesting"
	StatusParsing     JobStatus = "parsing"
	StatusValidating  JobStatus = "validating"
	StatusPersisting  JobStatus = "persisting"
	StatusClassifying JobStatus = "classifying"
	StatusVectorizing JobStatus = "vectorizing"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
)

// Terminal reports whether status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one record per document-processing submission.
type Job struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	DocumentURL    string     `json:"document_url"`
	Status         JobStatus  `json:"status"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	DocumentID     string     `json:"document_id,omitempty"`
	QuestionCount  int        `json:"question_count"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// DocumentKind is the detected source document format.
type DocumentKind string

const (
	KindPDF     DocumentKind = "pdf"
	KindDOCX    DocumentKind = "docx"
	KindDOC     DocumentKind = "doc"
	KindPPTX    DocumentKind = "pptx"
	KindImage   DocumentKind = "image"
	KindHTML    DocumentKind = "html"
	KindText    DocumentKind = "text"
	KindUnknown DocumentKind = "unknown"
)

// extensionKinds is the closed extension-to-kind table used by
// DetectDocumentKind.
var extensionKinds = map[string]DocumentKind{
	".pdf":  KindPDF,
	".docx": KindDOCX,
	".doc":  KindDOC,
	".pptx": KindPPTX,
	".ppt":  KindPPTX,
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".gif":  KindImage,
	".webp": KindImage,
	".html": KindHTML,
	".htm":  KindHTML,
	".txt":  KindText,
	".md":   KindText,
}

// Document is the persisted output of one successful pipeline run.
type Document struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	JobID             string    `json:"job_id"`
	Filename          string    `json:"filename"`
	SourceURL         string    `json:"source_url"`
	Kind              DocumentKind `json:"file_type"`
	OriginalMarkdown  string    `json:"original_markdown,omitempty"`
	CleanedMarkdown   string    `json:"cleaned_markdown,omitempty"`
	PublicMarkdown    string    `json:"public_markdown,omitempty"`
	Status            string    `json:"status"`
	QuestionCount     int       `json:"question_count"`
	CreatedAt         time.Time `json:"created_at"`
}

// QuestionKind is the closed set of supported question types.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindOpenEnded      QuestionKind = "open_ended"
	KindTrueFalse      QuestionKind = "true_false"
	KindFillInBlank    QuestionKind = "fill_in_blank"
)

var validQuestionKinds = map[QuestionKind]bool{
	KindMultipleChoice: true,
	KindOpenEnded:      true,
	KindTrueFalse:      true,
	KindFillInBlank:    true,
}

// Difficulty is the closed difficulty set.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

var validDifficulties = map[Difficulty]bool{
	DifficultyEasy: true, DifficultyMedium: true, DifficultyHard: true,
}

// CognitiveLevel is Bloom's taxonomy tier assigned during classification.
type CognitiveLevel string

const (
	CognitiveKnowledge     CognitiveLevel = "knowledge"
	CognitiveComprehension CognitiveLevel = "comprehension"
	CognitiveApplication   CognitiveLevel = "application"
	CognitiveAnalysis      CognitiveLevel = "analysis"
	CognitiveSynthesis     CognitiveLevel = "synthesis"
	CognitiveEvaluation    CognitiveLevel = "evaluation"
)

var validCognitiveLevels = map[CognitiveLevel]bool{
	CognitiveKnowledge: true, CognitiveComprehension: true, CognitiveApplication: true,
	CognitiveAnalysis: true, CognitiveSynthesis: true, CognitiveEvaluation: true,
}

// Question is a single educational item extracted from a Document.
type Question struct {
	ID             string            `json:"id"`
	DocumentID     string            `json:"document_id"`
	UserID         string            `json:"user_id"`
	Number         int               `json:"question_number"`
	Text           string            `json:"question_text"`
	Kind           QuestionKind      `json:"question_type"`
	Options        map[string]string `json:"options,omitempty"`
	CorrectAnswer  string            `json:"correct_answer,omitempty"`
	ImageURLs      []string          `json:"image_urls,omitempty"`

	Topic          string         `json:"topic,omitempty"`
	Subtopic       string         `json:"subtopic,omitempty"`
	Difficulty     Difficulty     `json:"difficulty,omitempty"`
	GradeLevel     string         `json:"grade_level,omitempty"`
	CognitiveLevel CognitiveLevel `json:"cognitive_level,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	IsClassified   bool           `json:"is_classified"`

	Embedding  []float32 `json:"-"`
	IsEmbedded bool      `json:"is_embedded"`

	CreatedAt time.Time `json:"created_at"`
}
