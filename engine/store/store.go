// Package store persists Documents and Questions in Postgres, with
// Question embeddings held in a pgvector column for similarity search.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/documently/docuflow/engine/domain"
	"github.com/documently/docuflow/pkg/repo"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// DocumentStore persists Document records.
type DocumentStore struct {
	pool *pgxpool.Pool
}

// NewDocumentStore creates a DocumentStore.
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore { return &DocumentStore{pool: pool} }

var _ repo.Repository[domain.Document, string] = (*DocumentStore)(nil)

// Create inserts a new Document.
func (s *DocumentStore) Create(ctx context.Context, d domain.Document) (domain.Document, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, user_id, job_id, filename, source_url, file_type,
		                        original_markdown, cleaned_markdown, public_markdown,
		                        status, question_count, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, now())`,
		d.ID, d.UserID, d.JobID, d.Filename, d.SourceURL, d.Kind,
		d.OriginalMarkdown, d.CleanedMarkdown, d.PublicMarkdown,
		d.Status, d.QuestionCount,
	)
	if err != nil {
		return domain.Document{}, fmt.Errorf("create document: %w", err)
	}
	return d, nil
}

// CreateTx inserts a new Document within an existing transaction, for
// callers that must commit the document and its questions atomically.
func (s *DocumentStore) CreateTx(ctx context.Context, tx pgx.Tx, d domain.Document) (domain.Document, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO documents (id, user_id, job_id, filename, source_url, file_type,
		                        original_markdown, cleaned_markdown, public_markdown,
		                        status, question_count, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, now())`,
		d.ID, d.UserID, d.JobID, d.Filename, d.SourceURL, d.Kind,
		d.OriginalMarkdown, d.CleanedMarkdown, d.PublicMarkdown,
		d.Status, d.QuestionCount,
	)
	if err != nil {
		return domain.Document{}, fmt.Errorf("create document: %w", err)
	}
	return d, nil
}

// Get fetches a Document by id.
func (s *DocumentStore) Get(ctx context.Context, id string) (domain.Document, error) {
	var d domain.Document
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, job_id, filename, source_url, file_type,
		       COALESCE(original_markdown,''), COALESCE(cleaned_markdown,''), COALESCE(public_markdown,''),
		       status, question_count, created_at
		FROM documents WHERE id = $1`, id,
	).Scan(&d.ID, &d.UserID, &d.JobID, &d.Filename, &d.SourceURL, &d.Kind,
		&d.OriginalMarkdown, &d.CleanedMarkdown, &d.PublicMarkdown,
		&d.Status, &d.QuestionCount, &d.CreatedAt)
	if err != nil {
		return domain.Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

// List returns documents for the user named in opts.Filter["user_id"].
func (s *DocumentStore) List(ctx context.Context, opts repo.ListOpts) ([]domain.Document, error) {
	userID, _ := opts.Filter["user_id"].(string)
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, job_id, filename, source_url, file_type,
		       COALESCE(original_markdown,''), COALESCE(cleaned_markdown,''), COALESCE(public_markdown,''),
		       status, question_count, created_at
		FROM documents WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.UserID, &d.JobID, &d.Filename, &d.SourceURL, &d.Kind,
			&d.OriginalMarkdown, &d.CleanedMarkdown, &d.PublicMarkdown,
			&d.Status, &d.QuestionCount, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Update replaces the mutable fields of a Document.
func (s *DocumentStore) Update(ctx context.Context, d domain.Document) (domain.Document, error) {
	_, err := s.pool.Exec(ctx, `
		UPDATE documents SET cleaned_markdown = $2, public_markdown = $3,
		                      status = $4, question_count = $5
		WHERE id = $1`,
		d.ID, d.CleanedMarkdown, d.PublicMarkdown, d.Status, d.QuestionCount,
	)
	if err != nil {
		return domain.Document{}, fmt.Errorf("update document: %w", err)
	}
	return d, nil
}

// Delete removes a Document and cascades to its Questions.
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// QuestionStore persists Question records, including their pgvector
// embeddings.
type QuestionStore struct {
	pool *pgxpool.Pool
}

// NewQuestionStore creates a QuestionStore.
func NewQuestionStore(pool *pgxpool.Pool) *QuestionStore { return &QuestionStore{pool: pool} }

// CreateBatch inserts all of questions within tx, returning their assigned
// ids in order. Callers drive the surrounding transaction.
func (s *QuestionStore) CreateBatch(ctx context.Context, tx pgx.Tx, questions []domain.Question) ([]string, error) {
	ids := make([]string, len(questions))
	for i, q := range questions {
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		ids[i] = q.ID
		optionsJSON, err := json.Marshal(q.Options)
		if err != nil {
			return nil, fmt.Errorf("marshal options: %w", err)
		}
		imagesJSON, err := json.Marshal(q.ImageURLs)
		if err != nil {
			return nil, fmt.Errorf("marshal image urls: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO questions (id, document_id, user_id, question_number, question_text,
			                        question_type, options, correct_answer, image_urls, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())`,
			q.ID, q.DocumentID, q.UserID, q.Number, q.Text, q.Kind,
			optionsJSON, q.CorrectAnswer, imagesJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("insert question %d: %w", q.Number, err)
		}
	}
	return ids, nil
}

// Get fetches a Question by id.
func (s *QuestionStore) Get(ctx context.Context, id string) (domain.Question, error) {
	return s.scanOne(ctx, s.pool.QueryRow(ctx, questionSelectSQL+` WHERE id = $1`, id))
}

// ListByIDs fetches questions in arbitrary id order.
func (s *QuestionStore) ListByIDs(ctx context.Context, ids []string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, questionSelectSQL+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list questions by ids: %w", err)
	}
	defer rows.Close()
	return s.scanAll(rows)
}

// ListByDocument returns every question belonging to documentID, ordered
// by question number.
func (s *QuestionStore) ListByDocument(ctx context.Context, documentID string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, questionSelectSQL+` WHERE document_id = $1 ORDER BY question_number`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list questions by document: %w", err)
	}
	defer rows.Close()
	return s.scanAll(rows)
}

// UpdateClassification writes classification fields for q, setting
// is_classified per the topic-set invariant.
func (s *QuestionStore) UpdateClassification(ctx context.Context, q domain.Question) error {
	tagsJSON, err := json.Marshal(q.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE questions SET topic=$2, subtopic=$3, difficulty=$4, grade_level=$5,
		                      cognitive_level=$6, tags=$7, is_classified=$8
		WHERE id = $1`,
		q.ID, q.Topic, q.Subtopic, q.Difficulty, q.GradeLevel, q.CognitiveLevel,
		tagsJSON, domain.IsClassified(q),
	)
	if err != nil {
		return fmt.Errorf("update classification: %w", err)
	}
	return nil
}

// UpdateClassificationTx is UpdateClassification's transactional variant.
func (s *QuestionStore) UpdateClassificationTx(ctx context.Context, tx pgx.Tx, q domain.Question) error {
	tagsJSON, err := json.Marshal(q.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE questions SET topic=$2, subtopic=$3, difficulty=$4, grade_level=$5,
		                      cognitive_level=$6, tags=$7, is_classified=$8
		WHERE id = $1`,
		q.ID, q.Topic, q.Subtopic, q.Difficulty, q.GradeLevel, q.CognitiveLevel,
		tagsJSON, domain.IsClassified(q),
	)
	if err != nil {
		return fmt.Errorf("update classification: %w", err)
	}
	return nil
}

// UpdateEmbeddingTx is UpdateEmbedding's transactional variant.
func (s *QuestionStore) UpdateEmbeddingTx(ctx context.Context, tx pgx.Tx, questionID string, vec []float32) error {
	_, err := tx.Exec(ctx, `
		UPDATE questions SET embedding = $2, is_embedded = true WHERE id = $1`,
		questionID, pgvector.NewVector(vec),
	)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	return nil
}

// UpdateEmbedding writes vec as q's embedding and sets is_embedded.
func (s *QuestionStore) UpdateEmbedding(ctx context.Context, questionID string, vec []float32) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE questions SET embedding = $2, is_embedded = true WHERE id = $1`,
		questionID, pgvector.NewVector(vec),
	)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	return nil
}

// SearchResult pairs a Question with its cosine similarity to the query
// vector.
type SearchResult struct {
	Question   domain.Question
	Similarity float64
}

// SearchSimilar returns the questions owned by userID whose embeddings are
// closest to queryVec, filtered to those at or above minSimilarity.
func (s *QuestionStore) SearchSimilar(ctx context.Context, userID string, queryVec []float32, limit int, minSimilarity float64) ([]SearchResult, error) {
	rows, err := s.pool.Query(ctx, strings.TrimSuffix(questionSelectSQL, "FROM questions")+`, 1 - (embedding <=> $2) AS similarity
		FROM questions
		WHERE user_id = $1 AND is_embedded = true
		ORDER BY embedding <=> $2
		LIMIT $3`,
		userID, pgvector.NewVector(queryVec), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		q, similarity, err := s.scanWithSimilarity(rows)
		if err != nil {
			return nil, err
		}
		if similarity >= minSimilarity {
			out = append(out, SearchResult{Question: q, Similarity: similarity})
		}
	}
	return out, rows.Err()
}

const questionSelectSQL = `
	SELECT id, document_id, user_id, question_number, question_text, question_type,
	       COALESCE(options, '{}'::jsonb), COALESCE(correct_answer, ''),
	       COALESCE(image_urls, '[]'::jsonb),
	       COALESCE(topic, ''), COALESCE(subtopic, ''), COALESCE(difficulty, ''),
	       COALESCE(grade_level, ''), COALESCE(cognitive_level, ''),
	       COALESCE(tags, '[]'::jsonb), is_classified, is_embedded, created_at
	FROM questions`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *QuestionStore) scanOne(ctx context.Context, row pgx.Row) (domain.Question, error) {
	return scanQuestion(row)
}

func (s *QuestionStore) scanAll(rows pgx.Rows) ([]domain.Question, error) {
	var out []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *QuestionStore) scanWithSimilarity(rows pgx.Rows) (domain.Question, float64, error) {
	var q domain.Question
	var optionsJSON, imagesJSON, tagsJSON []byte
	var similarity float64
	err := rows.Scan(&q.ID, &q.DocumentID, &q.UserID, &q.Number, &q.Text, &q.Kind,
		&optionsJSON, &q.CorrectAnswer, &imagesJSON,
		&q.Topic, &q.Subtopic, &q.Difficulty, &q.GradeLevel, &q.CognitiveLevel,
		&tagsJSON, &q.IsClassified, &q.IsEmbedded, &q.CreatedAt, &similarity,
	)
	if err != nil {
		return domain.Question{}, 0, fmt.Errorf("scan question row: %w", err)
	}
	unmarshalQuestionJSON(&q, optionsJSON, imagesJSON, tagsJSON)
	return q, similarity, nil
}

func scanQuestion(r rowScanner) (domain.Question, error) {
	var q domain.Question
	var optionsJSON, imagesJSON, tagsJSON []byte
	err := r.Scan(&q.ID, &q.DocumentID, &q.UserID, &q.Number, &q.Text, &q.Kind,
		&optionsJSON, &q.CorrectAnswer, &imagesJSON,
		&q.Topic, &q.Subtopic, &q.Difficulty, &q.GradeLevel, &q.CognitiveLevel,
		&tagsJSON, &q.IsClassified, &q.IsEmbedded, &q.CreatedAt,
	)
	if err != nil {
		return domain.Question{}, fmt.Errorf("scan question row: %w", err)
	}
	unmarshalQuestionJSON(&q, optionsJSON, imagesJSON, tagsJSON)
	return q, nil
}

func unmarshalQuestionJSON(q *domain.Question, optionsJSON, imagesJSON, tagsJSON []byte) {
	json.Unmarshal(optionsJSON, &q.Options)
	json.Unmarshal(imagesJSON, &q.ImageURLs)
	json.Unmarshal(tagsJSON, &q.Tags)
}
