package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

var errMissingBucket = errors.New("blob: bucket name is required")

// GCSConfig configures the Google Cloud Storage store.
type GCSConfig struct {
	Bucket string
	// CredentialsFile optionally points at a service-account key; when
	// empty, application default credentials are used.
	CredentialsFile string
}

// GCSStore persists uploads in a GCS bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore constructs the bucket-backed store.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errMissingBucket
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blob: failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads the bytes and returns the public object URL.
func (s *GCSStore) Put(ctx context.Context, data []byte, path, contentType string) (string, error) {
	object := s.client.Bucket(s.bucket).Object(path)
	writer := object.NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("blob: failed to write object %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("blob: failed to finalize object %s: %w", path, err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, path), nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
