package pipeline

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(dir, name)
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for entryName, content := range files {
		w, err := zw.Create(entryName)
		if err != nil {
			t.Fatalf("create entry %q: %v", entryName, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write entry %q: %v", entryName, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return zipPath
}

func TestParsingAcceptsNonEmptyZip(t *testing.T) {
	dir := t.TempDir()
	zipPath := writeZip(t, dir, "output.zip", map[string]string{"output.md": "# Hello"})

	state := NewState("job-1", "user-1", "ref")
	state.OutputZipPath = zipPath

	if err := NewParsing().Run(context.Background(), state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParsingRejectsEmptyZip(t *testing.T) {
	dir := t.TempDir()
	zipPath := writeZip(t, dir, "output.zip", nil)

	state := NewState("job-1", "user-1", "ref")
	state.OutputZipPath = zipPath

	if err := NewParsing().Run(context.Background(), state); err == nil {
		t.Fatal("expected error for empty zip")
	}
	if state.ErrorMessage == "" {
		t.Fatal("expected ErrorMessage to be recorded")
	}
}

func TestParsingRejectsMissingFile(t *testing.T) {
	state := NewState("job-1", "user-1", "ref")
	state.OutputZipPath = filepath.Join(t.TempDir(), "does-not-exist.zip")

	if err := NewParsing().Run(context.Background(), state); err == nil {
		t.Fatal("expected error for missing zip file")
	}
}
