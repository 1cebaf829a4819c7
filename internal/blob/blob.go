// Package blob is the object-storage capability used after admission
// to persist the uploaded file. It plays no part in the gating logic.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var errMissingBaseDir = errors.New("blob: base directory is required")

// Store persists raw upload bytes and returns a serving URL.
type Store interface {
	Put(ctx context.Context, data []byte, path, contentType string) (string, error)
}

// DirStore writes uploads under a local directory. It backs local/demo
// deployments where no bucket is configured.
type DirStore struct {
	baseDir string
}

// NewDirStore constructs a directory-backed store rooted at baseDir.
func NewDirStore(baseDir string) (*DirStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errMissingBaseDir
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: failed to prepare base directory: %w", err)
	}
	return &DirStore{baseDir: baseDir}, nil
}

// Put writes the bytes under the base directory and returns a file URL.
func (s *DirStore) Put(_ context.Context, data []byte, path, _ string) (string, error) {
	cleaned := filepath.Clean("/" + path)
	target := filepath.Join(s.baseDir, cleaned)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("blob: failed to prepare directory for %s: %w", path, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("blob: failed to write %s: %w", path, err)
	}
	return "file://" + target, nil
}
