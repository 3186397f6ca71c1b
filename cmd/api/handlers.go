package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/documently/docuflow/engine/domain"
	"github.com/documently/docuflow/engine/embedding"
	"github.com/documently/docuflow/pkg/repo"
	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requireClientCredentials enforces the X-Client-Id/X-Client-Secret header
// pair on mutating endpoints, per §6. A Config with no credentials set
// (local/dev) disables the check.
func (d *apiDeps) requireClientCredentials(w http.ResponseWriter, r *http.Request) bool {
	if d.cfg.ClientID == "" && d.cfg.ClientSecret == "" {
		return true
	}
	if r.Header.Get("X-Client-Id") != d.cfg.ClientID || r.Header.Get("X-Client-Secret") != d.cfg.ClientSecret {
		writeError(w, http.StatusUnauthorized, "invalid client credentials")
		return false
	}
	return true
}

// handleUpload stores a raw document upload and returns a signed reference
// that handleProcessDoc can be pointed at.
func (d *apiDeps) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !d.requireClientCredentials(w, r) {
		return
	}
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	userID := r.FormValue("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	content := make([]byte, header.Size)
	if _, err := file.Read(content); err != nil && err.Error() != "EOF" {
		writeError(w, http.StatusInternalServerError, "read upload")
		return
	}

	url, err := d.objectStore.UploadDocument(r.Context(), content, header.Filename, userID, d.cfg.SignedURLExpiration)
	if err != nil {
		d.log.Error("upload document", "err", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"document_url": url,
		"filename":     header.Filename,
	})
}

type processDocRequest struct {
	DocumentURL string `json:"document_url"`
	UserID      string `json:"user_id"`
	Filename    string `json:"filename"`
}

// handleProcessDoc queues a new job and hands it to the orchestrator; the
// response returns immediately with the queued job id, per §4.13.
func (d *apiDeps) handleProcessDoc(w http.ResponseWriter, r *http.Request) {
	if !d.requireClientCredentials(w, r) {
		return
	}
	var req processDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocumentURL == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "document_url and user_id are required")
		return
	}

	job, err := d.jobs.Create(r.Context(), req.UserID, req.DocumentURL)
	if err != nil {
		d.log.Error("create job", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	d.orchestrator.Submit(r.Context(), job, req.Filename)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":  job.ID,
		"status":  string(job.Status),
		"message": "document queued for processing",
	})
}

func (d *apiDeps) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := d.jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleGetImage proxies an extracted image back to the caller. Images are
// immutable once uploaded, so responses are cached aggressively.
func (d *apiDeps) handleGetImage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	jobID := chi.URLParam(r, "jobID")
	filename := chi.URLParam(r, "filename")

	content, contentType, err := d.objectStore.GetImage(r.Context(), userID, jobID, filename)
	if err != nil {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

func (d *apiDeps) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	limit := queryIntOr(r, "limit", 20)
	offset := queryIntOr(r, "offset", 0)

	docs, err := d.documents.List(r.Context(), repo.ListOpts{
		Limit:  limit,
		Offset: offset,
		Filter: map[string]any{"user_id": userID},
	})
	if err != nil {
		d.log.Error("list documents", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (d *apiDeps) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := d.documents.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (d *apiDeps) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	questions, err := d.questions.ListByDocument(r.Context(), id)
	if err != nil {
		d.log.Error("list questions", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list questions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func (d *apiDeps) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	qid := chi.URLParam(r, "qid")
	q, err := d.questions.Get(r.Context(), qid)
	if err != nil {
		writeError(w, http.StatusNotFound, "question not found")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type updateQuestionRequest struct {
	Text          *string           `json:"question_text"`
	Options       map[string]string `json:"options"`
	CorrectAnswer *string           `json:"correct_answer"`
	ReEmbed       bool              `json:"re_embed"`
}

// handleUpdateQuestion applies an editorial correction to a question and,
// when requested, re-embeds it so similarity search reflects the edit.
func (d *apiDeps) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	if !d.requireClientCredentials(w, r) {
		return
	}
	qid := chi.URLParam(r, "qid")

	var req updateQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q, err := d.questions.Get(r.Context(), qid)
	if err != nil {
		writeError(w, http.StatusNotFound, "question not found")
		return
	}

	if req.Text != nil {
		q.Text = *req.Text
	}
	if req.Options != nil {
		q.Options = req.Options
	}
	if req.CorrectAnswer != nil {
		q.CorrectAnswer = *req.CorrectAnswer
	}
	if err := domain.ValidateQuestion(q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := d.questions.UpdateClassification(r.Context(), q); err != nil {
		d.log.Error("update question", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to update question")
		return
	}

	if req.ReEmbed {
		text := embedding.BuildQuestionText(embedding.Question{
			Text: q.Text, Kind: string(q.Kind), Options: q.Options,
			Topic: q.Topic, Subtopic: q.Subtopic, Difficulty: string(q.Difficulty),
			GradeLevel: q.GradeLevel, Tags: q.Tags,
		})
		vec, err := d.embedder.EmbedText(r.Context(), text)
		if err != nil {
			d.log.Warn("re-embed question", "question_id", qid, "err", err)
		} else if err := d.questions.UpdateEmbedding(r.Context(), qid, []float32(vec)); err != nil {
			d.log.Warn("store re-embedding", "question_id", qid, "err", err)
		}
	}

	writeJSON(w, http.StatusOK, q)
}

// handleSearchQuestions runs a cosine-similarity search over a user's
// questions, per the Vectorization module's SearchResult contract.
func (d *apiDeps) handleSearchQuestions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	query := r.URL.Query().Get("q")
	if userID == "" || query == "" {
		writeError(w, http.StatusBadRequest, "user_id and q are required")
		return
	}
	limit := queryIntOr(r, "limit", 10)
	minSimilarity := 0.0
	if v := r.URL.Query().Get("min_similarity"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			minSimilarity = f
		}
	}

	vec, err := d.embedder.EmbedText(r.Context(), query)
	if err != nil {
		d.log.Error("embed search query", "err", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	results, err := d.questions.SearchSimilar(r.Context(), userID, []float32(vec), limit, minSimilarity)
	if err != nil {
		d.log.Error("search questions", "err", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func queryIntOr(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
