package pipeline

import (
	"bytes"
	"fmt"
	"text/template"
)

// Renderer renders a named prompt template against a variable bag. It
// stands in for the externally-owned template CRUD service this
// specification assumes but does not implement.
type Renderer interface {
	Render(name string, vars map[string]any) (string, error)
}

const (
	templateValidation = "validation_scoring"
	templateExtraction  = "question_extraction"
	templateClassify    = "classification"
)

// TemplateRenderer is the package-level default Renderer: a fixed set of
// text/template templates compiled once at construction.
type TemplateRenderer struct {
	templates map[string]*template.Template
}

// NewTemplateRenderer compiles the fixed template set this pipeline needs.
func NewTemplateRenderer() *TemplateRenderer {
	r := &TemplateRenderer{templates: map[string]*template.Template{}}
	r.templates[templateValidation] = template.Must(template.New(templateValidation).Parse(validationPromptSrc))
	r.templates[templateExtraction] = template.Must(template.New(templateExtraction).Parse(extractionPromptSrc))
	r.templates[templateClassify] = template.Must(template.New(templateClassify).Parse(classificationPromptSrc))
	return r
}

// Render implements Renderer.
func (r *TemplateRenderer) Render(name string, vars map[string]any) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("pipeline: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render template %q: %w", name, err)
	}
	return buf.String(), nil
}

const validationPromptSrc = `You are assessing the quality of a document conversion.

Source filename: {{.source_filename}}
Detected file type: {{.file_type}}
Source file size (bytes): {{.file_size}}
Images found in conversion output: {{.image_list}}

Converted Markdown:
---
{{.markdown_content}}
---

Score this conversion from 0 to 100 on fidelity to the original document
(text completeness, table structure, heading structure, image
references). Respond with a JSON object only:
{"score": <0-100>, "passed": <bool>, "issues": [<string>, ...], "recommendation": "<string>"}
`

const extractionPromptSrc = `Extract every question from the following Markdown document. For each
question, determine its type (multiple_choice, true_false, open_ended, or
fill_in_blank), its options if any (as a label-to-text mapping), and any
image URLs that illustrate it.

Document:
---
{{.markdown_content}}
---

Respond with a JSON array only, each element shaped as:
{"question_number": <int>, "question_text": "<string>", "question_type": "<string>",
 "options": {"A": "<string>", ...}, "image_urls": [<string>, ...]}
`

const classificationPromptSrc = `Classify each of the following questions. For each, assign a topic (one
of: math, physics, chemistry, biology, history, geography, literature,
language, computer_science, economics, other), a subtopic, a difficulty
(easy, medium, hard), an appropriate grade level, a Bloom's taxonomy
cognitive level (knowledge, comprehension, application, analysis,
synthesis, evaluation), and up to 5 topical tags.

Questions:
{{.questions_block}}

Respond with a JSON array only, each element shaped as:
{"question_id": "<string>", "topic": "<string>", "subtopic": "<string>",
 "difficulty": "<string>", "grade_level": "<string>", "cognitive_level": "<string>",
 "tags": [<string>, ...]}
`
