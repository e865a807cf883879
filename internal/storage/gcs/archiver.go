// Package gcs mirrors saved export files into a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// Name labels this archiver in logs and metrics.
const Name = "gcs"

const (
	jsonContentType = "application/json"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is the object name prefix, e.g. "harvests".
	Prefix string
}

// ClientFactory creates storage clients. Authentication is handled by
// Application Default Credentials in the default factory.
type ClientFactory interface {
	NewClient(ctx context.Context) (*storage.Client, error)
}

// DefaultClientFactory uses storage.NewClient.
type DefaultClientFactory struct{}

// NewClient creates a client with default credentials.
func (DefaultClientFactory) NewClient(ctx context.Context) (*storage.Client, error) {
	return storage.NewClient(ctx)
}

// Archiver uploads the record and spreadsheet of each saved document.
type Archiver struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// New wraps an existing client.
func New(client *storage.Client, cfg Config, logger *zap.Logger) (*Archiver, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger.Named(Name),
	}, nil
}

// Open creates a client and checks the bucket is reachable, so a bad
// configuration fails at startup rather than on the first upload.
func Open(ctx context.Context, cfg Config, factory ClientFactory, logger *zap.Logger) (*Archiver, error) {
	if factory == nil {
		factory = DefaultClientFactory{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := factory.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close GCS client after bucket check", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to get GCS bucket %q attributes: %w", cfg.Bucket, err)
	}
	return New(client, cfg, logger)
}

// Close releases the client.
func (a *Archiver) Close() error {
	return a.client.Close()
}

// Archive uploads each written file of saved. Files that were not
// written (empty path) are skipped.
func (a *Archiver) Archive(ctx context.Context, saved harvest.SavedDocument) error {
	var errs []error
	for _, file := range []struct {
		path        string
		contentType string
	}{
		{saved.Paths.Record, jsonContentType},
		{saved.Paths.Table, xlsxContentType},
	} {
		if file.path == "" {
			continue
		}
		uri, err := a.upload(ctx, file.path, file.contentType)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		a.logger.Debug("uploaded", zap.String("uri", uri), zap.String("run_id", saved.RunID))
	}
	return errors.Join(errs...)
}

// ObjectName returns the object an exported file is stored under.
func (a *Archiver) ObjectName(localPath string) string {
	return path.Join(a.prefix, filepath.Base(localPath))
}

func (a *Archiver) upload(ctx context.Context, localPath, contentType string) (string, error) {
	f, err := os.Open(localPath) //nolint:gosec // path produced by the writer
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			a.logger.Warn("failed to close export file", zap.String("path", localPath), zap.Error(closeErr))
		}
	}()

	object := a.ObjectName(localPath)
	writer := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, f); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object %s: %w (close writer: %v)", object, err, closeErr)
		}
		return "", fmt.Errorf("copy object %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer for %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, object), nil
}
