// Package gcs uploads publication CSV snapshots to Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/publication-harvester/internal/crawler"
)

// Config captures the bucket layout.
type Config struct {
	Bucket string
	Prefix string
}

// Sink writes record sets to a configured GCS bucket.
type Sink struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed sink.
func New(client *storage.Client, cfg Config) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Sink{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Remote marks the sink as network-backed.
func (s *Sink) Remote() bool { return true }

// Save uploads records as CSV and returns a gs:// URI.
func (s *Sink) Save(ctx context.Context, name string, records []crawler.PublicationRecord) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("object name is required")
	}
	object := name
	if s.prefix != "" {
		object = path.Join(s.prefix, name)
	}

	var buf bytes.Buffer
	if err := crawler.WriteCSV(&buf, records); err != nil {
		return "", err
	}

	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = "text/csv; charset=utf-8"
	if _, err := io.Copy(writer, &buf); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}
