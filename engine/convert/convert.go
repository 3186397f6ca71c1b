// Package convert wraps the external document-conversion service that
// turns source bytes into Markdown (and, in zip mode, an image bundle).
package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Options is the closed set of converter parameters recognized by the
// wire protocol. Zero values are omitted from the request payload.
type Options struct {
	TargetType     string   `json:"target_type,omitempty"`
	ToFormats      []string `json:"to_formats,omitempty"`
	DoOCR          *bool    `json:"do_ocr,omitempty"`
	ForceOCR       *bool    `json:"force_ocr,omitempty"`
	OCREngine      string   `json:"ocr_engine,omitempty"`
	OCRLang        []string `json:"ocr_lang,omitempty"`
	PDFBackend     string   `json:"pdf_backend,omitempty"`
	TableMode      string   `json:"table_mode,omitempty"`
	DoTableStruct  *bool    `json:"do_table_structure,omitempty"`
	TableCellMatch *bool    `json:"table_cell_matching,omitempty"`
	IncludeImages  *bool    `json:"include_images,omitempty"`
	ImagesScale    float64  `json:"images_scale,omitempty"`
	ImageExportMode string  `json:"image_export_mode,omitempty"`
	Pipeline       string   `json:"pipeline,omitempty"`
	PageRange      string   `json:"page_range,omitempty"`
	DocumentTimeout float64 `json:"document_timeout,omitempty"`
	DoFormulaEnrichment   *bool `json:"do_formula_enrichment,omitempty"`
	DoCodeEnrichment      *bool `json:"do_code_enrichment,omitempty"`
	DoPictureClassification *bool `json:"do_picture_classification,omitempty"`
	DoPictureDescription  *bool `json:"do_picture_description,omitempty"`
	AbortOnError   *bool    `json:"abort_on_error,omitempty"`
}

// boolPtr is a small helper for constructing Options literals.
func boolPtr(b bool) *bool { return &b }

// RetryConfigForAttempt returns the converter option overrides the
// Validation stage applies before re-running Ingestion, per attempt number
// (2 or 3). Attempt 1 uses the caller's original options unmodified.
func RetryConfigForAttempt(attempt int) Options {
	switch attempt {
	case 2:
		return Options{PDFBackend: "dlparse_v4", ForceOCR: boolPtr(true), OCREngine: "tesseract"}
	case 3:
		return Options{PDFBackend: "dlparse_v2", ForceOCR: boolPtr(true), OCREngine: "easyocr", DoFormulaEnrichment: boolPtr(true)}
	default:
		return Options{}
	}
}

// Merge overlays the non-zero TargetType, PDFBackend, ForceOCR, OCREngine
// and DoFormulaEnrichment fields of o2 onto o. Other fields of o2 are not
// copied; they keep o's values.
func (o Options) Merge(o2 Options) Options {
	out := o
	if o2.TargetType != "" {
		out.TargetType = o2.TargetType
	}
	if o2.PDFBackend != "" {
		out.PDFBackend = o2.PDFBackend
	}
	if o2.ForceOCR != nil {
		out.ForceOCR = o2.ForceOCR
	}
	if o2.OCREngine != "" {
		out.OCREngine = o2.OCREngine
	}
	if o2.DoFormulaEnrichment != nil {
		out.DoFormulaEnrichment = o2.DoFormulaEnrichment
	}
	return out
}

// Response is the result of a URL-mode conversion.
type Response struct {
	Success  bool
	Markdown string
	Filename string
	Elapsed  time.Duration
	Error    string
}

// ZipResponse is the result of a file-mode conversion.
type ZipResponse struct {
	Success bool
	ZipPath string
	Elapsed time.Duration
	Error   string
}

// Client talks to the external converter service.
type Client struct {
	urlEndpoint  string
	fileEndpoint string
	timeout      time.Duration
	tempDir      string
	http         *http.Client
}

// Config configures a Client.
type Config struct {
	URLEndpoint  string
	FileEndpoint string
	Timeout      time.Duration
	TempDir      string
}

// New creates a converter Client.
func New(cfg Config) *Client {
	return &Client{
		urlEndpoint:  cfg.URLEndpoint,
		fileEndpoint: cfg.FileEndpoint,
		timeout:      cfg.Timeout,
		tempDir:      cfg.TempDir,
		http:         &http.Client{Timeout: cfg.Timeout},
	}
}

type convertRequest struct {
	Options Options  `json:"options"`
	Sources []source `json:"sources"`
}

type source struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

type apiResult struct {
	Status   string `json:"status"`
	Document struct {
		MDContent string `json:"md_content"`
		Filename  string `json:"filename"`
	} `json:"document"`
	ProcessingTime float64 `json:"processing_time"`
	Error          string  `json:"error"`
}

// ConvertByURL converts a remotely-hosted document to inline Markdown.
func (c *Client) ConvertByURL(ctx context.Context, documentURL string, opts Options) Response {
	start := time.Now()
	opts.TargetType = "inbody"
	body, err := json.Marshal(convertRequest{
		Options: opts,
		Sources: []source{{Kind: "http", URL: documentURL}},
	})
	if err != nil {
		return Response{Success: false, Error: fmt.Sprintf("marshal request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.urlEndpoint, bytes.NewReader(body))
	if err != nil {
		return Response{Success: false, Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.classifyTransportError(err, start)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{Success: false, Error: fmt.Sprintf("read response: %v", err), Elapsed: time.Since(start)}
	}
	if resp.StatusCode >= 400 {
		return Response{Success: false, Error: fmt.Sprintf("converter status %d: %s", resp.StatusCode, string(raw)), Elapsed: time.Since(start)}
	}

	var result apiResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return Response{Success: false, Error: fmt.Sprintf("decode response: %v", err), Elapsed: time.Since(start)}
	}
	if result.Status != "success" {
		return Response{Success: false, Error: result.Error, Elapsed: time.Since(start)}
	}

	return Response{
		Success:  true,
		Markdown: result.Document.MDContent,
		Filename: result.Document.Filename,
		Elapsed:  time.Since(start),
	}
}

// ConvertFileToZip converts a local file to a ZIP bundle containing
// Markdown and any extracted images, writing the bundle to
// <temp_dir>/<job_id>/output.zip.
func (c *Client) ConvertFileToZip(ctx context.Context, localPath string, jobID string, opts Options) ZipResponse {
	start := time.Now()
	opts.TargetType = "zip"

	f, err := os.Open(localPath)
	if err != nil {
		return ZipResponse{Success: false, Error: fmt.Sprintf("open source file: %v", err)}
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	optsJSON, _ := json.Marshal(opts)
	if err := mw.WriteField("options", string(optsJSON)); err != nil {
		return ZipResponse{Success: false, Error: fmt.Sprintf("write options field: %v", err)}
	}
	part, err := mw.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return ZipResponse{Success: false, Error: fmt.Sprintf("create form file: %v", err)}
	}
	if _, err := io.Copy(part, f); err != nil {
		return ZipResponse{Success: false, Error: fmt.Sprintf("copy source file: %v", err)}
	}
	if err := mw.Close(); err != nil {
		return ZipResponse{Success: false, Error: fmt.Sprintf("close multipart writer: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.fileEndpoint, &buf)
	if err != nil {
		return ZipResponse{Success: false, Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		r := c.classifyTransportError(err, start)
		return ZipResponse{Success: false, Error: r.Error, Elapsed: r.Elapsed}
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); len(ct) >= len("application/json") && ct[:len("application/json")] == "application/json" {
		raw, _ := io.ReadAll(resp.Body)
		var result apiResult
		json.Unmarshal(raw, &result)
		if result.Error != "" {
			return ZipResponse{Success: false, Error: result.Error, Elapsed: time.Since(start)}
		}
		return ZipResponse{Success: false, Error: fmt.Sprintf("unexpected json response: %s", string(raw)), Elapsed: time.Since(start)}
	}

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return ZipResponse{Success: false, Error: fmt.Sprintf("converter status %d: %s", resp.StatusCode, string(raw)), Elapsed: time.Since(start)}
	}

	jobDir := filepath.Join(c.tempDir, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return ZipResponse{Success: false, Error: fmt.Sprintf("mkdir job temp dir: %v", err)}
	}
	zipPath := filepath.Join(jobDir, "output.zip")
	out, err := os.Create(zipPath)
	if err != nil {
		return ZipResponse{Success: false, Error: fmt.Sprintf("create zip file: %v", err)}
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return ZipResponse{Success: false, Error: fmt.Sprintf("write zip file: %v", err)}
	}

	return ZipResponse{Success: true, ZipPath: zipPath, Elapsed: time.Since(start)}
}

// DownloadToTemp retrieves url's bytes into the configured temp directory
// under the given filename.
func (c *Client) DownloadToTemp(ctx context.Context, url, jobID, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("download status %d", resp.StatusCode)
	}

	jobDir := filepath.Join(c.tempDir, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir job temp dir: %w", err)
	}
	localPath := filepath.Join(jobDir, filename)
	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("create local file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("write local file: %w", err)
	}
	return localPath, nil
}

// CleanupTempFile best-effort removes a local temp file.
func (c *Client) CleanupTempFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

func (c *Client) classifyTransportError(err error, start time.Time) Response {
	elapsed := time.Since(start)
	switch e := err.(type) {
	case interface{ Timeout() bool }:
		if e.Timeout() {
			return Response{Success: false, Error: fmt.Sprintf("converter request timed out: %v", err), Elapsed: elapsed}
		}
	}
	return Response{Success: false, Error: fmt.Sprintf("converter request failed: %v", err), Elapsed: elapsed}
}
