// Package objectstore uploads source documents and extracted images and
// serves them back through stable references.
package objectstore

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// imageExtensions is the closed set of extensions considered images when
// extracting a converter ZIP bundle.
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true,
}

const maxSignedURLExpiration = 7 * 24 * time.Hour

// Client uploads and serves objects in an S3-compatible bucket.
type Client struct {
	s3         *s3.Client
	uploader   *manager.Uploader
	presign    *s3.PresignClient
	bucket     string
	apiBaseURL string
	log        *slog.Logger
}

// Config configures a Client.
type Config struct {
	Bucket     string
	APIBaseURL string
}

// New creates an objectstore Client from an AWS config and bucket settings.
func New(s3Client *s3.Client, cfg Config, log *slog.Logger) *Client {
	return &Client{
		s3:         s3Client,
		uploader:   manager.NewUploader(s3Client),
		presign:    s3.NewPresignClient(s3Client),
		bucket:     cfg.Bucket,
		apiBaseURL: cfg.APIBaseURL,
		log:        log,
	}
}

// contentTypes is the extension-to-content-type table used for uploads.
var contentTypes = map[string]string{
	".pdf": "application/pdf", ".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".png": "image/png", ".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".gif": "image/gif",
	".webp": "image/webp", ".svg": "image/svg+xml", ".html": "text/html", ".txt": "text/plain",
}

func contentType(filename string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// UploadDocument writes a source document to documents.in/<user_id>/<filename>
// and returns a signed URL valid for at most 7 days.
func (c *Client) UploadDocument(ctx context.Context, content []byte, filename, userID string, expiration time.Duration) (string, error) {
	if expiration <= 0 || expiration > maxSignedURLExpiration {
		expiration = maxSignedURLExpiration
	}
	key := fmt.Sprintf("documents.in/%s/%s", userID, filename)

	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType(filename)),
	})
	if err != nil {
		return "", fmt.Errorf("upload document: %w", err)
	}

	presigned, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiration))
	if err != nil {
		c.log.Warn("presign document url failed, no fallback available", "key", key, "err", err)
		return "", fmt.Errorf("presign document url: %w", err)
	}
	return presigned.URL, nil
}

// UploadImage writes an image to processed/<user_id>/<job_id>/images/<filename>
// and returns a stable, application-served URL.
func (c *Client) UploadImage(ctx context.Context, content []byte, filename, userID, jobID string) (string, error) {
	key := fmt.Sprintf("processed/%s/%s/images/%s", userID, jobID, filename)
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType(filename)),
	})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return fmt.Sprintf("%s/images/%s/%s/%s", c.apiBaseURL, userID, jobID, filename), nil
}

const imageUploadRetries = 3

// UploadImagesFromZip extracts every image entry from a converter ZIP
// bundle and uploads each, retrying per-image up to 3 times. The returned
// map contains both the ZIP-relative path and the bare filename for every
// successfully uploaded image.
func (c *Client) UploadImagesFromZip(ctx context.Context, zipPath, userID, jobID string) (map[string]string, error) {
	urlMapping := make(map[string]string)

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	var failedImages []string
	for _, entry := range r.File {
		ext := strings.ToLower(path.Ext(entry.Name))
		if !imageExtensions[ext] {
			continue
		}

		data, err := readZipEntry(entry)
		if err != nil {
			c.log.Warn("read zip image entry failed", "entry", entry.Name, "err", err)
			failedImages = append(failedImages, entry.Name)
			continue
		}

		base := path.Base(entry.Name)
		var servedURL string
		var uploadErr error
		for attempt := 1; attempt <= imageUploadRetries; attempt++ {
			servedURL, uploadErr = c.UploadImage(ctx, data, base, userID, jobID)
			if uploadErr == nil {
				break
			}
			c.log.Warn("image upload attempt failed", "entry", entry.Name, "attempt", attempt, "err", uploadErr)
		}
		if uploadErr != nil {
			failedImages = append(failedImages, entry.Name)
			continue
		}

		urlMapping[entry.Name] = servedURL
		urlMapping[base] = servedURL
	}

	if len(failedImages) > 0 {
		c.log.Warn("some images failed to upload", "job_id", jobID, "failed", failedImages)
	}
	return urlMapping, nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// GetImage fetches a previously uploaded image's bytes and content type.
func (c *Client) GetImage(ctx context.Context, userID, jobID, filename string) ([]byte, string, error) {
	key := fmt.Sprintf("processed/%s/%s/images/%s", userID, jobID, filename)
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("get image: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read image body: %w", err)
	}
	ct := contentType(filename)
	if out.ContentType != nil && *out.ContentType != "" {
		ct = *out.ContentType
	}
	return data, ct, nil
}
