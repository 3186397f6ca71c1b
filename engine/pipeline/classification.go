package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/documently/docuflow/engine/domain"
	"github.com/documently/docuflow/engine/llmgateway"
	"github.com/documently/docuflow/engine/store"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxClassificationTextChars = 1000

// Classification assigns topic/subtopic/difficulty/grade/cognitive-level
// and tags to every extracted question, per §4.11. It is fault-isolated:
// any failure degrades the job (classification fields left unset) rather
// than aborting it.
type Classification struct {
	pool      *pgxpool.Pool
	questions *store.QuestionStore
	gateway   *llmgateway.Gateway
	renderer  Renderer
	model     string
}

// NewClassification builds the Classification stage.
func NewClassification(pool *pgxpool.Pool, questions *store.QuestionStore, gateway *llmgateway.Gateway, renderer Renderer, model string) *Classification {
	return &Classification{pool: pool, questions: questions, gateway: gateway, renderer: renderer, model: model}
}

// Run executes the Classification stage against state, mutating it in
// place. It never returns an error that should abort the pipeline;
// failures are recorded in state.Metadata.
func (c *Classification) Run(ctx context.Context, state *State) {
	state.Stage = "classifying"

	if len(state.QuestionIDs) == 0 {
		return
	}

	if err := c.classify(ctx, state); err != nil {
		state.Metadata["classification_error"] = err.Error()
		state.Metadata["classified_count"] = 0
	}
}

func (c *Classification) classify(ctx context.Context, state *State) error {
	questions, err := c.questions.ListByIDs(ctx, state.QuestionIDs)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return nil
	}

	prompt, err := c.renderer.Render(templateClassify, map[string]any{
		"questions_block": buildQuestionsBlock(questions),
	})
	if err != nil {
		return fmt.Errorf("render prompt: %w", err)
	}

	entries, err := c.gateway.InvokeJSONArray(ctx, c.model, prompt)
	if err != nil {
		return fmt.Errorf("invoke llm: %w", err)
	}

	byID := map[string]map[string]any{}
	for _, e := range entries {
		if id, ok := e["question_id"].(string); ok {
			byID[id] = e
		}
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, q := range questions {
		entry, ok := byID[q.ID]
		if !ok {
			continue
		}
		applyClassificationEntry(&q, entry)
		if err := domain.ValidateClassification(q); err != nil {
			continue
		}
		if err := c.questions.UpdateClassificationTx(ctx, tx, q); err != nil {
			return fmt.Errorf("update question %s: %w", q.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func applyClassificationEntry(q *domain.Question, entry map[string]any) {
	if v, ok := entry["topic"].(string); ok {
		q.Topic = v
	}
	if v, ok := entry["subtopic"].(string); ok {
		q.Subtopic = v
	}
	if v, ok := entry["difficulty"].(string); ok {
		q.Difficulty = domain.Difficulty(v)
	}
	if v, ok := entry["grade_level"].(string); ok {
		q.GradeLevel = v
	}
	if v, ok := entry["cognitive_level"].(string); ok {
		q.CognitiveLevel = domain.CognitiveLevel(v)
	}
	if tags, ok := entry["tags"].([]any); ok {
		q.Tags = nil
		for _, t := range tags {
			if s, ok := t.(string); ok {
				q.Tags = append(q.Tags, s)
			}
		}
	}
}

func buildQuestionsBlock(questions []domain.Question) string {
	var b strings.Builder
	for _, q := range questions {
		text := q.Text
		if len(text) > maxClassificationTextChars {
			text = text[:maxClassificationTextChars] + "..."
		}
		fmt.Fprintf(&b, "id=%s kind=%s options=%v text=%s\n", q.ID, q.Kind, q.Options, text)
	}
	return b.String()
}
