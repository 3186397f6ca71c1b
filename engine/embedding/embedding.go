// Package embedding turns question text into fixed-dimension dense vectors
// for semantic similarity search.
package embedding

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/documently/docuflow/pkg/fn"
)

// Vector is a dense embedding of fixed dimension.
type Vector []float32

// Provider embeds text into vectors. Implementations must be safe for
// concurrent use by multiple pipeline workers.
type Provider interface {
	EmbedText(ctx context.Context, text string) (Vector, error)
	EmbedTexts(ctx context.Context, texts []string) ([]Vector, error)
	Dimensions() int
}

// Question is the minimal view of a persisted question build_question_text
// needs. It mirrors (a subset of) engine/domain.Question so this package
// does not have to import the full domain type.
type Question struct {
	Text         string
	Kind         string
	Options      map[string]string
	Topic        string
	Subtopic     string
	Difficulty   string
	GradeLevel   string
	Tags         []string
}

// BuildQuestionText composes the text representation embedded for a
// question: an optional context header, up to five keywords, the question
// text, and its options in sorted label order. Pure function.
func BuildQuestionText(q Question) string {
	var b strings.Builder

	if header := contextHeader(q); header != "" {
		b.WriteString(header)
		b.WriteString("\n")
	}

	if len(q.Tags) > 0 {
		n := len(q.Tags)
		if n > 5 {
			n = 5
		}
		b.WriteString("Keywords: ")
		b.WriteString(strings.Join(q.Tags[:n], ", "))
		b.WriteString("\n")
	}

	b.WriteString(strings.TrimSpace(q.Text))

	if len(q.Options) > 0 {
		labels := make([]string, 0, len(q.Options))
		for label := range q.Options {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			fmt.Fprintf(&b, "\n%s) %s", label, q.Options[label])
		}
	}

	return b.String()
}

func contextHeader(q Question) string {
	var parts []string
	if q.Topic != "" {
		head := q.Topic
		if q.Subtopic != "" {
			head += " | " + q.Subtopic
		}
		parts = append(parts, head)
	}
	if q.Difficulty != "" {
		parts = append(parts, q.Difficulty+" difficulty")
	}
	if q.GradeLevel != "" {
		parts = append(parts, "grade "+q.GradeLevel)
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, " | ") + "]"
}

// RetryOpts is the default retry policy for embedding calls (§4.6: 2
// attempts, 1s base delay).
var RetryOpts = fn.RetryOpts{
	MaxAttempts: 2,
	InitialWait: time.Second,
	MaxWait:     10 * time.Second,
	Jitter:      true,
}

// EmbedTextRetrying wraps a single EmbedText call with the package retry policy.
func EmbedTextRetrying(ctx context.Context, p Provider, text string) (Vector, error) {
	r := fn.Retry(ctx, RetryOpts, func(ctx context.Context) fn.Result[Vector] {
		return fn.FromPair(p.EmbedText(ctx, text))
	})
	return r.Unwrap()
}

// EmbedTextsRetrying wraps a batch EmbedTexts call with the package retry
// policy. An empty input returns an empty slice without invoking the
// provider.
func EmbedTextsRetrying(ctx context.Context, p Provider, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return []Vector{}, nil
	}
	r := fn.Retry(ctx, RetryOpts, func(ctx context.Context) fn.Result[[]Vector] {
		return fn.FromPair(p.EmbedTexts(ctx, texts))
	})
	return r.Unwrap()
}
