// Package gcs provides a report store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	reports "github.com/JakeFAU/tender-analyzer/internal/storage"
)

// Config captures the bucket and object prefix reports live under.
type Config struct {
	Bucket string
	Prefix string
}

// ReportStore writes reports as objects in a configured GCS bucket.
type ReportStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed report store.
func New(client *storage.Client, cfg Config) (*ReportStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &ReportStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *ReportStore) objectName(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Put uploads a report and returns a gs:// URI. GCS only makes an object
// visible once the writer is closed successfully.
func (s *ReportStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := reports.ValidateName(name); err != nil {
		return "", err
	}
	object := s.objectName(name)
	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = "application/json; charset=utf-8"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

// List returns the report names directly under the prefix, sorted.
func (s *ReportStore) List(ctx context.Context) ([]string, error) {
	query := &storage.Query{Delimiter: "/"}
	if s.prefix != "" {
		query.Prefix = s.prefix + "/"
	}
	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		if attrs.Name == "" {
			continue
		}
		names = append(names, strings.TrimPrefix(attrs.Name, query.Prefix))
	}
	return reports.FilterReports(names), nil
}

// Open streams the named report.
func (s *ReportStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := reports.ValidateName(name); err != nil {
		return nil, reports.ErrReportNotFound
	}
	r, err := s.client.Bucket(s.bucket).Object(s.objectName(name)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, reports.ErrReportNotFound
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	return r, nil
}
