// Package events fires best-effort job-lifecycle notifications over NATS.
// Publishing is pure observability: a failure here must never affect job
// outcome, and a nil NATS connection (NATS_URL unset) makes every
// operation a no-op.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/documently/docuflow/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

const jobLifecycleSubject = "docuflow.jobs.lifecycle"

// JobEvent is the payload published for every job-lifecycle transition.
type JobEvent struct {
	JobID     string         `json:"job_id"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher publishes JobEvents to NATS. The zero value (nc == nil) is a
// valid no-op publisher.
type Publisher struct {
	nc  *nats.Conn
	log *slog.Logger
}

// New creates a Publisher. nc may be nil, in which case Publish is a
// no-op — callers should pass nil when NATS_URL is unset rather than
// branch on it themselves.
func New(nc *nats.Conn, log *slog.Logger) *Publisher {
	return &Publisher{nc: nc, log: log}
}

// Publish fires a best-effort job-lifecycle event, stamped with the current
// UTC time.
func (p *Publisher) Publish(ctx context.Context, jobID, event string, data map[string]any) {
	if p == nil || p.nc == nil {
		return
	}
	evt := JobEvent{JobID: jobID, Event: event, Data: data, Timestamp: time.Now().UTC()}
	if err := natsutil.Publish(ctx, p.nc, jobLifecycleSubject, evt); err != nil {
		p.log.Warn("publish job lifecycle event", "job_id", jobID, "event", event, "err", err)
	}
}
