package pipeline

import (
	"context"
	"fmt"

	"github.com/documently/docuflow/engine/convert"
	"github.com/documently/docuflow/engine/domain"
	"github.com/documently/docuflow/pkg/resilience"
)

// Ingestion downloads (or reuses, on a validation retry) the source file
// and invokes the converter in forced zip mode, per §4.8.
type Ingestion struct {
	converter *convert.Client
	breaker   *resilience.Breaker
	limiter   *resilience.Limiter
}

// NewIngestion builds the Ingestion stage. A token-bucket limiter bounds
// outbound converter calls independently of the breaker, per §4.1/§5: a
// rate-limited call can still trip the breaker on failure.
func NewIngestion(converter *convert.Client) *Ingestion {
	return &Ingestion{
		converter: converter,
		breaker:   resilience.GetBreaker("converter", resilience.DefaultBreakerOpts),
		limiter: resilience.NewLimiter(resilience.LimiterOpts{
			Rate: 5, Burst: 5,
		}),
	}
}

// Run executes the Ingestion stage against state, mutating it in place.
func (ing *Ingestion) Run(ctx context.Context, state *State) error {
	state.Stage = "ingesting"

	if state.Kind == "" {
		kind := domain.DetectDocumentKind(state.Filename)
		if kind == domain.KindUnknown {
			kind = domain.DetectDocumentKind(state.SourceRef)
		}
		state.Kind = string(kind)
	}

	if state.Kind == string(domain.KindUnknown) {
		state.RecordError("unknown document kind")
		return fmt.Errorf("ingestion: unknown document kind for %q", state.SourceRef)
	}

	if state.SourceFilePath == "" {
		localPath, err := ing.converter.DownloadToTemp(ctx, state.SourceRef, state.JobID, state.Filename)
		if err != nil {
			state.RecordError(fmt.Sprintf("download failed: %v", err))
			return fmt.Errorf("ingestion: download: %w", err)
		}
		state.SourceFilePath = localPath
	}

	opts := state.ConverterOptions
	opts.TargetType = "zip"

	if err := ing.limiter.Wait(ctx); err != nil {
		state.RecordError(fmt.Sprintf("rate limited: %v", err))
		return fmt.Errorf("ingestion: rate limit: %w", err)
	}

	var zipResp convert.ZipResponse
	err := ing.breaker.Call(ctx, func(ctx context.Context) error {
		zipResp = ing.converter.ConvertFileToZip(ctx, state.SourceFilePath, state.JobID, opts)
		if !zipResp.Success {
			return fmt.Errorf("%s", zipResp.Error)
		}
		return nil
	})
	if err != nil {
		state.RecordError(fmt.Sprintf("conversion failed: %v", err))
		return fmt.Errorf("ingestion: convert: %w", err)
	}

	state.OutputZipPath = zipResp.ZipPath
	return nil
}
