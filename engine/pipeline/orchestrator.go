package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/documently/docuflow/engine/domain"
	"github.com/documently/docuflow/engine/jobs"
	"github.com/documently/docuflow/pkg/metrics"
)

const failureNoContent = "Processing failed: No content extracted from document. The source URL may be invalid or expired."

// EventPublisher fires best-effort job-lifecycle notifications. Its
// failure never affects job outcome; a nil publisher is a valid no-op.
type EventPublisher interface {
	Publish(ctx context.Context, jobID string, event string, data map[string]any)
}

// Orchestrator runs the fixed stage graph for a job: ingestion → parsing →
// validation (looping back to ingestion on a failed score, up to
// max_attempts) → persistence → classification → vectorization, per
// §4.13. Jobs run on a bounded worker pool so a burst of submissions
// cannot unbound the goroutine count.
type Orchestrator struct {
	rootCtx context.Context
	jobs    *jobs.Registry
	log     *slog.Logger
	events  EventPublisher
	tempDir string
	sem     chan struct{}
	metrics *stageMetrics

	ingestion      *Ingestion
	parsing        *Parsing
	validation     *Validation
	persistence    *Persistence
	classification *Classification
	vectorization  *Vectorization
}

// Config bundles the Orchestrator's constructor arguments.
type Config struct {
	RootCtx    context.Context
	Jobs       *jobs.Registry
	Log        *slog.Logger
	Events     EventPublisher
	TempDir    string
	WorkerPool int
	Metrics    *metrics.Registry

	Ingestion      *Ingestion
	Parsing        *Parsing
	Validation     *Validation
	Persistence    *Persistence
	Classification *Classification
	Vectorization  *Vectorization
}

// stageMetrics bundles the Prometheus-text counters/histograms the
// orchestrator updates around every stage run and every job outcome.
type stageMetrics struct {
	stageDuration *metrics.Histogram
	stageErrors   map[string]*metrics.Counter
	jobsCompleted *metrics.Counter
	jobsFailed    *metrics.Counter
}

func newStageMetrics(reg *metrics.Registry) *stageMetrics {
	if reg == nil {
		reg = metrics.New()
	}
	stages := []string{"ingesting", "parsing", "validating", "persisting", "classifying", "vectorizing"}
	errors := make(map[string]*metrics.Counter, len(stages))
	for _, s := range stages {
		errors[s] = reg.Counter(metrics.WithLabels("pipeline_stage_errors_total", "stage", s),
			"count of stage executions that ended in failure")
	}
	return &stageMetrics{
		stageDuration: reg.Histogram("pipeline_stage_duration_seconds", "stage execution time", nil),
		stageErrors:   errors,
		jobsCompleted: reg.Counter("pipeline_jobs_completed_total", "jobs that reached the completed state"),
		jobsFailed:    reg.Counter("pipeline_jobs_failed_total", "jobs that reached the failed state"),
	}
}

func (m *stageMetrics) observe(stage string, start time.Time, err error) {
	m.stageDuration.Since(start)
	if err != nil {
		if c, ok := m.stageErrors[stage]; ok {
			c.Inc()
		}
	}
}

// New builds an Orchestrator.
func New(cfg Config) *Orchestrator {
	poolSize := cfg.WorkerPool
	if poolSize <= 0 {
		poolSize = 10
	}
	return &Orchestrator{
		rootCtx:        cfg.RootCtx,
		jobs:           cfg.Jobs,
		log:            cfg.Log,
		events:         cfg.Events,
		tempDir:        cfg.TempDir,
		sem:            make(chan struct{}, poolSize),
		metrics:        newStageMetrics(cfg.Metrics),
		ingestion:      cfg.Ingestion,
		parsing:        cfg.Parsing,
		validation:     cfg.Validation,
		persistence:    cfg.Persistence,
		classification: cfg.Classification,
		vectorization:  cfg.Vectorization,
	}
}

// Submit spawns a worker to run job's pipeline, blocking only long enough
// to acquire a worker-pool slot (or until ctx is cancelled). The caller's
// HTTP handler should return immediately after Submit — the pipeline runs
// off the request's goroutine on the orchestrator's own root context, so
// it outlives the initiating request.
func (o *Orchestrator) Submit(ctx context.Context, job domain.Job, filename string) {
	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	go func() {
		defer func() { <-o.sem }()
		o.run(o.rootCtx, job, filename)
	}()
}

func (o *Orchestrator) run(ctx context.Context, job domain.Job, filename string) {
	state := NewState(job.ID, job.UserID, job.DocumentURL)
	state.Filename = filename
	defer o.cleanup(state)

	failed := o.runStages(ctx, state)

	if failed || state.NoContentExtracted() {
		msg := state.ErrorMessage
		if msg == "" || state.NoContentExtracted() {
			msg = failureNoContent
		}
		o.metrics.jobsFailed.Inc()
		o.updateStatus(ctx, job.ID, domain.StatusFailed, msg)
		if err := o.jobs.Fail(ctx, job.ID, msg); err != nil {
			o.log.Error("mark job failed", "job_id", job.ID, "err", err)
		}
		o.fireEvent(ctx, job.ID, "job.failed", map[string]any{"error": msg})
		return
	}

	classifyStart := time.Now()
	o.classification.Run(ctx, state)
	o.metrics.observe("classifying", classifyStart, nil)
	o.updateStatus(ctx, job.ID, domain.StatusClassifying, "")

	vectorizeStart := time.Now()
	o.vectorization.Run(ctx, state)
	o.metrics.observe("vectorizing", vectorizeStart, nil)
	o.updateStatus(ctx, job.ID, domain.StatusVectorizing, "")

	o.metrics.jobsCompleted.Inc()
	if err := o.jobs.Complete(ctx, job.ID, state.DocumentID, state.QuestionCount); err != nil {
		o.log.Error("mark job completed", "job_id", job.ID, "err", err)
	}
	o.fireEvent(ctx, job.ID, "job.completed", map[string]any{
		"document_id":    state.DocumentID,
		"question_count": state.QuestionCount,
	})
}

// runStages runs ingestion → parsing → validation, looping back to
// ingestion while validation requests a re-conversion, then persistence.
// Returns true if the job should be marked failed.
func (o *Orchestrator) runStages(ctx context.Context, state *State) bool {
	for {
		o.updateStatus(ctx, state.JobID, domain.StatusIngesting, "")
		start := time.Now()
		err := o.ingestion.Run(ctx, state)
		o.metrics.observe("ingesting", start, err)
		if err != nil {
			o.log.Warn("ingestion failed", "job_id", state.JobID, "err", err)
			return true
		}

		o.updateStatus(ctx, state.JobID, domain.StatusParsing, "")
		start = time.Now()
		err = o.parsing.Run(ctx, state)
		o.metrics.observe("parsing", start, err)
		if err != nil {
			o.log.Warn("parsing failed", "job_id", state.JobID, "err", err)
			return true
		}

		o.updateStatus(ctx, state.JobID, domain.StatusValidating, "")
		start = time.Now()
		err = o.validation.Run(ctx, state)
		o.metrics.observe("validating", start, err)
		if err != nil {
			o.log.Warn("validation failed", "job_id", state.JobID, "err", err)
			return true
		}
		if state.ValidationPassed {
			break
		}
		// Validation requested a re-conversion with new converter options;
		// loop back to ingestion, not parsing, per §4.13.
	}

	o.updateStatus(ctx, state.JobID, domain.StatusPersisting, "")
	start := time.Now()
	err := o.persistence.Run(ctx, state)
	o.metrics.observe("persisting", start, err)
	if err != nil {
		o.log.Warn("persistence failed", "job_id", state.JobID, "err", err)
		return true
	}
	return false
}

func (o *Orchestrator) updateStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg string) {
	if err := o.jobs.UpdateStatus(ctx, jobID, status, errMsg); err != nil {
		o.log.Error("job status update failed", "job_id", jobID, "status", status, "err", err)
	}
	o.fireEvent(ctx, jobID, "job.status_changed", map[string]any{"status": string(status)})
}

func (o *Orchestrator) fireEvent(ctx context.Context, jobID, event string, data map[string]any) {
	if o.events == nil {
		return
	}
	o.events.Publish(ctx, jobID, event, data)
}

func (o *Orchestrator) cleanup(state *State) {
	if state.SourceFilePath != "" {
		_ = os.Remove(state.SourceFilePath)
	}
	if o.tempDir == "" {
		return
	}
	_ = os.RemoveAll(filepath.Join(o.tempDir, state.JobID))
}
