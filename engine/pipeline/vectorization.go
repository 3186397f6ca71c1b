package pipeline

import (
	"context"
	"fmt"

	"github.com/documently/docuflow/engine/domain"
	"github.com/documently/docuflow/engine/embedding"
	"github.com/documently/docuflow/engine/store"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Vectorization embeds every extracted question's composed text and
// stores the resulting vectors, per §4.12. Like Classification, it is
// fault-isolated: a failure degrades the job rather than aborting it.
type Vectorization struct {
	pool      *pgxpool.Pool
	questions *store.QuestionStore
	embedder  embedding.Provider
}

// NewVectorization builds the Vectorization stage.
func NewVectorization(pool *pgxpool.Pool, questions *store.QuestionStore, embedder embedding.Provider) *Vectorization {
	return &Vectorization{pool: pool, questions: questions, embedder: embedder}
}

// Run executes the Vectorization stage against state, mutating it in
// place. It never returns an error that should abort the pipeline;
// failures are recorded in state.Metadata.
func (v *Vectorization) Run(ctx context.Context, state *State) {
	state.Stage = "vectorizing"

	if len(state.QuestionIDs) == 0 {
		return
	}

	if err := v.vectorize(ctx, state); err != nil {
		state.Metadata["vectorization_error"] = err.Error()
		state.Metadata["vector_ids"] = []string{}
	}
}

func (v *Vectorization) vectorize(ctx context.Context, state *State) error {
	questions, err := v.questions.ListByIDs(ctx, state.QuestionIDs)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return nil
	}

	texts := make([]string, len(questions))
	for i, q := range questions {
		texts[i] = embedding.BuildQuestionText(toEmbeddingQuestion(q))
	}

	vectors, err := embedding.EmbedTextsRetrying(ctx, v.embedder, texts)
	if err != nil {
		return fmt.Errorf("embed questions: %w", err)
	}
	if len(vectors) != len(questions) {
		return fmt.Errorf("embedding count mismatch: got %d for %d questions", len(vectors), len(questions))
	}

	tx, err := v.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, q := range questions {
		vec := []float32(vectors[i])
		if err := domain.ValidateEmbedding(vec, v.embedder.Dimensions()); err != nil {
			continue
		}
		if err := v.questions.UpdateEmbeddingTx(ctx, tx, q.ID, vec); err != nil {
			return fmt.Errorf("update question %s: %w", q.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func toEmbeddingQuestion(q domain.Question) embedding.Question {
	return embedding.Question{
		Text:       q.Text,
		Kind:       string(q.Kind),
		Options:    q.Options,
		Topic:      q.Topic,
		Subtopic:   q.Subtopic,
		Difficulty: string(q.Difficulty),
		GradeLevel: q.GradeLevel,
		Tags:       q.Tags,
	}
}
