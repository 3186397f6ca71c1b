package pipeline

import (
	"archive/zip"
	"context"
	"fmt"
)

// Parsing owns the job-status transition to "parsing" and a structural
// sanity check on Ingestion's ZIP output: the conversion call itself stays
// inside Ingestion (C8), per §4.8A.
type Parsing struct{}

// NewParsing builds the Parsing stage.
func NewParsing() *Parsing { return &Parsing{} }

// Run checks that state.OutputZipPath contains at least one entry.
func (Parsing) Run(_ context.Context, state *State) error {
	state.Stage = "parsing"

	r, err := zip.OpenReader(state.OutputZipPath)
	if err != nil {
		state.RecordError(fmt.Sprintf("open conversion output: %v", err))
		return fmt.Errorf("parsing: open zip: %w", err)
	}
	defer r.Close()

	if len(r.File) == 0 {
		state.RecordError("conversion output is empty")
		return fmt.Errorf("parsing: zip %q has no entries", state.OutputZipPath)
	}
	return nil
}
