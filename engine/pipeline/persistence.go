package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/documently/docuflow/engine/domain"
	"github.com/documently/docuflow/engine/llmgateway"
	"github.com/documently/docuflow/engine/objectstore"
	"github.com/documently/docuflow/engine/store"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxExtractionMarkdownChars = 25000

// Persistence uploads images, rewrites Markdown image references to
// served URLs, extracts questions with an LLM, and commits the Document
// and its Questions atomically, per §4.10.
type Persistence struct {
	pool        *pgxpool.Pool
	documents   *store.DocumentStore
	questions   *store.QuestionStore
	objectStore *objectstore.Client
	gateway     *llmgateway.Gateway
	renderer    Renderer
	model       string
}

// NewPersistence builds the Persistence stage.
func NewPersistence(pool *pgxpool.Pool, documents *store.DocumentStore, questions *store.QuestionStore, objectStore *objectstore.Client, gateway *llmgateway.Gateway, renderer Renderer, model string) *Persistence {
	return &Persistence{
		pool:        pool,
		documents:   documents,
		questions:   questions,
		objectStore: objectStore,
		gateway:     gateway,
		renderer:    renderer,
		model:       model,
	}
}

// Run executes the Persistence stage against state, mutating it in place.
func (p *Persistence) Run(ctx context.Context, state *State) error {
	state.Stage = "persisting"

	if state.OutputZipPath != "" {
		urlMap, err := p.objectStore.UploadImagesFromZip(ctx, state.OutputZipPath, state.UserID, state.JobID)
		if err != nil {
			state.RecordError(fmt.Sprintf("image upload failed: %v", err))
			return fmt.Errorf("persistence: upload images: %w", err)
		}
		state.ImageURLMap = urlMap
	}

	base := state.CleanedMarkdown
	if base == "" {
		base = state.OriginalMarkdown
	}
	state.PublicMarkdown = rewriteImageRefs(base, state.ImageURLMap)

	prompt, err := p.renderer.Render(templateExtraction, map[string]any{
		"markdown_content": truncate(state.PublicMarkdown, maxExtractionMarkdownChars),
	})
	if err != nil {
		state.RecordError(fmt.Sprintf("build extraction prompt: %v", err))
		return fmt.Errorf("persistence: render prompt: %w", err)
	}

	entries, err := p.gateway.InvokeJSONArray(ctx, p.model, prompt)
	if err != nil {
		state.RecordError(fmt.Sprintf("question extraction failed: %v", err))
		return fmt.Errorf("persistence: extract questions: %w", err)
	}

	questions := parseExtractedQuestions(entries, state)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		state.RecordError(fmt.Sprintf("begin transaction: %v", err))
		return fmt.Errorf("persistence: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	doc := domain.Document{
		UserID:           state.UserID,
		JobID:            state.JobID,
		Filename:         state.Filename,
		SourceURL:        state.SourceRef,
		Kind:             domain.DocumentKind(state.Kind),
		OriginalMarkdown: state.OriginalMarkdown,
		CleanedMarkdown:  state.CleanedMarkdown,
		PublicMarkdown:   state.PublicMarkdown,
		Status:           "processed",
		QuestionCount:    len(questions),
	}
	doc, err = p.documents.CreateTx(ctx, tx, doc)
	if err != nil {
		state.RecordError(fmt.Sprintf("create document: %v", err))
		return fmt.Errorf("persistence: create document: %w", err)
	}

	for i := range questions {
		questions[i].DocumentID = doc.ID
	}
	ids, err := p.questions.CreateBatch(ctx, tx, questions)
	if err != nil {
		state.RecordError(fmt.Sprintf("create questions: %v", err))
		return fmt.Errorf("persistence: create questions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		state.RecordError(fmt.Sprintf("commit transaction: %v", err))
		return fmt.Errorf("persistence: commit: %w", err)
	}

	state.DocumentID = doc.ID
	state.QuestionCount = len(questions)
	state.QuestionIDs = ids
	return nil
}

// rewriteImageRefs replaces local ZIP-relative image references with their
// uploaded served URLs. Keys are sorted longest-first so a shorter ref that
// happens to be a suffix of a longer one is not replaced prematurely.
func rewriteImageRefs(markdown string, urlMap map[string]string) string {
	if len(urlMap) == 0 {
		return markdown
	}
	refs := make([]string, 0, len(urlMap))
	for ref := range urlMap {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return len(refs[i]) > len(refs[j]) })

	out := markdown
	for _, ref := range refs {
		url := urlMap[ref]
		out = strings.ReplaceAll(out, "]("+ref+")", "]("+url+")")
		out = strings.ReplaceAll(out, `src="`+ref+`"`, `src="`+url+`"`)
		out = strings.ReplaceAll(out, `src='`+ref+`'`, `src='`+url+`'`)
	}
	return out
}

// parseExtractedQuestions converts the LLM's raw extraction entries into
// domain.Questions, dropping any entry that does not conform.
func parseExtractedQuestions(entries []map[string]any, state *State) []domain.Question {
	var out []domain.Question
	for _, e := range entries {
		q, ok := parseExtractedQuestion(e, state)
		if !ok {
			continue
		}
		out = append(out, q)
	}
	return out
}

func parseExtractedQuestion(e map[string]any, state *State) (domain.Question, bool) {
	text, _ := e["question_text"].(string)
	kind, _ := e["question_type"].(string)
	if text == "" || kind == "" {
		return domain.Question{}, false
	}

	q := domain.Question{
		UserID: state.UserID,
		Text:   text,
		Kind:   domain.QuestionKind(kind),
	}

	switch n := e["question_number"].(type) {
	case float64:
		q.Number = int(n)
	case string:
		if v, err := strconv.Atoi(n); err == nil {
			q.Number = v
		}
	}

	if opts, ok := e["options"].(map[string]any); ok {
		q.Options = map[string]string{}
		for k, v := range opts {
			if s, ok := v.(string); ok {
				q.Options[k] = s
			}
		}
	}

	if urls, ok := e["image_urls"].([]any); ok {
		for _, u := range urls {
			if s, ok := u.(string); ok {
				q.ImageURLs = append(q.ImageURLs, s)
			}
		}
	}

	if err := domain.ValidateQuestion(q); err != nil {
		return domain.Question{}, false
	}
	return q, true
}
