//go:build integration

package jobs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/documently/docuflow/engine/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return New(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestJobLifecycle(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	job, err := r.Create(ctx, "user-1", "https://example.com/doc.pdf")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.Status != domain.StatusQueued {
		t.Fatalf("expected queued status, got %q", job.Status)
	}

	if err := r.UpdateStatus(ctx, job.ID, domain.StatusIngesting, ""); err != nil {
		t.Fatalf("update status: %v", err)
	}

	fetched, err := r.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if fetched.Status != domain.StatusIngesting {
		t.Fatalf("expected ingesting status, got %q", fetched.Status)
	}
	if fetched.StartedAt == nil {
		t.Fatal("expected started_at to be set on first non-queued transition")
	}

	if err := r.Complete(ctx, job.ID, "doc-1", 5); err != nil {
		t.Fatalf("complete job: %v", err)
	}
	completed, err := r.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get completed job: %v", err)
	}
	if completed.Status != domain.StatusCompleted || completed.DocumentID != "doc-1" || completed.QuestionCount != 5 {
		t.Fatalf("unexpected completed job: %+v", completed)
	}
	if completed.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestJobFail(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	job, err := r.Create(ctx, "user-1", "https://example.com/bad.pdf")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := r.Fail(ctx, job.ID, "boom"); err != nil {
		t.Fatalf("fail job: %v", err)
	}

	failed, err := r.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get failed job: %v", err)
	}
	if failed.Status != domain.StatusFailed || failed.ErrorMessage != "boom" {
		t.Fatalf("unexpected failed job: %+v", failed)
	}
}

func TestListByUser(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	if _, err := r.Create(ctx, "user-list", "https://example.com/a.pdf"); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if _, err := r.Create(ctx, "user-list", "https://example.com/b.pdf"); err != nil {
		t.Fatalf("create job: %v", err)
	}

	jobs, err := r.ListByUser(ctx, "user-list", 10, 0)
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(jobs) < 2 {
		t.Fatalf("expected at least 2 jobs, got %d", len(jobs))
	}
}
