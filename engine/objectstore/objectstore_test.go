package objectstore

import (
	"archive/zip"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestContentTypeKnownExtensions(t *testing.T) {
	cases := map[string]string{
		"report.pdf":  "application/pdf",
		"photo.PNG":   "image/png",
		"icon.svg":    "image/svg+xml",
		"notes.txt":   "text/plain",
		"archive.zip": "application/octet-stream",
	}
	for name, want := range cases {
		if got := contentType(name); got != want {
			t.Errorf("contentType(%q) = %q, want %q", name, got, want)
		}
	}
}

func writeTestZip(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "bundle.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create entry %q: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write entry %q: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return zipPath
}

func TestUploadImagesFromZipNoImageEntriesReturnsEmptyMapping(t *testing.T) {
	zipPath := writeTestZip(t, map[string]string{"output.md": "# Hello, no images here"})

	c := &Client{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	urlMap, err := c.UploadImagesFromZip(context.Background(), zipPath, "user-1", "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(urlMap) != 0 {
		t.Fatalf("expected empty mapping, got %v", urlMap)
	}
}

func TestUploadImagesFromZipMissingFile(t *testing.T) {
	c := &Client{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	_, err := c.UploadImagesFromZip(context.Background(), filepath.Join(t.TempDir(), "missing.zip"), "user-1", "job-1")
	if err == nil {
		t.Fatal("expected error for missing zip file")
	}
}
