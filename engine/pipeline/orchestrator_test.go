package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/documently/docuflow/pkg/metrics"
)

func TestNewStageMetricsBuildsPerStageCounters(t *testing.T) {
	m := newStageMetrics(metrics.New())
	stages := []string{"ingesting", "parsing", "validating", "persisting", "classifying", "vectorizing"}
	for _, s := range stages {
		if _, ok := m.stageErrors[s]; !ok {
			t.Fatalf("expected an error counter for stage %q", s)
		}
	}
	if m.jobsCompleted == nil || m.jobsFailed == nil || m.stageDuration == nil {
		t.Fatal("expected job outcome counters and duration histogram to be initialized")
	}
}

func TestNewStageMetricsDefaultsToFreshRegistry(t *testing.T) {
	m := newStageMetrics(nil)
	if m == nil || m.jobsCompleted == nil {
		t.Fatal("expected newStageMetrics(nil) to build a usable metrics bundle")
	}
}

func TestObserveIncrementsErrorCounterOnFailure(t *testing.T) {
	m := newStageMetrics(metrics.New())
	before := m.stageErrors["ingesting"].Value()

	m.observe("ingesting", time.Now(), errors.New("boom"))

	after := m.stageErrors["ingesting"].Value()
	if after != before+1 {
		t.Fatalf("expected error counter to increment by 1, got %d -> %d", before, after)
	}
}

func TestObserveDoesNotIncrementErrorCounterOnSuccess(t *testing.T) {
	m := newStageMetrics(metrics.New())
	before := m.stageErrors["parsing"].Value()

	m.observe("parsing", time.Now(), nil)

	after := m.stageErrors["parsing"].Value()
	if after != before {
		t.Fatalf("expected error counter to remain unchanged on success, got %d -> %d", before, after)
	}
}

func TestObserveUnknownStageDoesNotPanic(t *testing.T) {
	m := newStageMetrics(metrics.New())
	m.observe("not-a-real-stage", time.Now(), errors.New("boom"))
}
