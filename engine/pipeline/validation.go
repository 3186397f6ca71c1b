package pipeline

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/documently/docuflow/engine/convert"
	"github.com/documently/docuflow/engine/llmgateway"
)

const (
	maxValidationMarkdownChars = 15000
	truncationMarker           = "\n...[truncated]"
	defaultMaxValidationAttempts = 3
)

var validationImageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true,
}

// Validation scores a conversion's fidelity with an LLM and either accepts
// it, requests a re-conversion with different converter options, or
// force-accepts once max_attempts is exhausted, per §4.9.
type Validation struct {
	gateway     *llmgateway.Gateway
	renderer    Renderer
	model       string
	maxAttempts int
}

// NewValidation builds the Validation stage. maxAttempts <= 0 uses the
// spec default of 3.
func NewValidation(gateway *llmgateway.Gateway, renderer Renderer, model string, maxAttempts int) *Validation {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxValidationAttempts
	}
	return &Validation{gateway: gateway, renderer: renderer, model: model, maxAttempts: maxAttempts}
}

// Run executes the Validation stage against state, mutating it in place.
func (v *Validation) Run(ctx context.Context, state *State) error {
	state.Stage = "validating"

	markdown, images, err := readZipContents(state.OutputZipPath)
	if err != nil {
		// Validator unavailability must not block the pipeline.
		state.ValidationPassed = true
		state.Metadata["validation_error"] = err.Error()
		return nil
	}
	state.OriginalMarkdown = markdown

	fileSize := int64(0)
	if info, statErr := os.Stat(state.SourceFilePath); statErr == nil {
		fileSize = info.Size()
	}

	prompt, err := v.renderer.Render(templateValidation, map[string]any{
		"source_filename":  state.Filename,
		"file_type":        state.Kind,
		"file_size":        fileSize,
		"markdown_content": truncate(markdown, maxValidationMarkdownChars),
		"image_list":       strings.Join(images, ", "),
	})
	if err != nil {
		state.ValidationPassed = true
		state.Metadata["validation_error"] = err.Error()
		return nil
	}

	result, err := v.gateway.InvokeJSONObject(ctx, v.model, prompt)
	state.ValidationAttempts++
	if err != nil || result == nil {
		// LLM or parse failure: do not block the pipeline on validator
		// unavailability.
		state.ValidationPassed = true
		if err != nil {
			state.Metadata["validation_error"] = err.Error()
		}
		cleanupSource(state)
		return nil
	}

	score, _ := result["score"].(float64)
	passed, hasPassed := result["passed"].(bool)
	if !hasPassed {
		passed = score >= 70
	}
	state.Metadata["validation_score"] = score

	switch {
	case passed:
		state.ValidationPassed = true
		cleanupSource(state)
	case state.ValidationAttempts < v.maxAttempts:
		state.ValidationPassed = false
		state.ConverterOptions = state.ConverterOptions.Merge(convert.RetryConfigForAttempt(state.ValidationAttempts + 1))
	default:
		state.ValidationPassed = true
		state.MaxAttemptsReached = true
		state.Metadata["max_attempts_reached"] = true
		cleanupSource(state)
	}

	return nil
}

func cleanupSource(state *State) {
	if state.SourceFilePath == "" {
		return
	}
	_ = os.Remove(state.SourceFilePath)
	state.SourceFilePath = ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + truncationMarker
}

// readZipContents opens the converter output ZIP and returns the first
// Markdown entry's text and the names of every image entry.
func readZipContents(zipPath string) (string, []string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	var markdown string
	var foundMD bool
	var images []string
	for _, entry := range r.File {
		ext := strings.ToLower(path.Ext(entry.Name))
		switch {
		case ext == ".md" && !foundMD:
			content, err := readZipFile(entry)
			if err != nil {
				return "", nil, fmt.Errorf("read markdown entry: %w", err)
			}
			markdown = content
			foundMD = true
		case validationImageExtensions[ext]:
			images = append(images, entry.Name)
		}
	}
	if !foundMD {
		return "", nil, fmt.Errorf("no markdown entry found in %q", zipPath)
	}
	sort.Strings(images)
	return markdown, images, nil
}

func readZipFile(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
