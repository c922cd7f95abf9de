package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/imagelayer/pkg/imagelayer"
)

// Config options for the file system backend
type Config struct {
	BaseDir string // Root directory for payload files
}

// Backend is a file system implementation of the imagelayer.BlobStore interface
type Backend struct {
	baseDir string
}

// New creates a new file system storage backend
func New(config Config) (imagelayer.BlobStore, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	// Ensure base directory exists
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: filepath.Clean(config.BaseDir)}, nil
}

// path resolves objectKey under the base directory and rejects keys that escape it
func (b *Backend) path(op, objectKey string) (string, error) {
	filePath := filepath.Join(b.baseDir, filepath.FromSlash(objectKey))
	if filePath != b.baseDir && !strings.HasPrefix(filePath, b.baseDir+string(filepath.Separator)) {
		return "", b.wrap(op, objectKey, fmt.Errorf("key escapes base directory"))
	}
	return filePath, nil
}

func (b *Backend) wrap(op, objectKey string, err error) error {
	return &imagelayer.StorageError{Backend: "fs", Key: objectKey, Op: op, Err: err}
}

// Upload writes the payload to a file, creating parent directories as needed
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	filePath, err := b.path("upload", objectKey)
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return b.wrap("upload", objectKey, err)
	}

	// Write to a temp file first so readers never see a partial payload
	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".upload-*")
	if err != nil {
		return b.wrap("upload", objectKey, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return b.wrap("upload", objectKey, err)
	}
	if err := tmp.Close(); err != nil {
		return b.wrap("upload", objectKey, err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return b.wrap("upload", objectKey, err)
	}
	return nil
}

// Download opens the payload file for reading
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	filePath, err := b.path("download", objectKey)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, b.wrap("download", objectKey, imagelayer.ErrObjectNotFound)
	}
	if err != nil {
		return nil, b.wrap("download", objectKey, err)
	}
	return file, nil
}

// Delete removes the payload file and any directories left empty
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	filePath, err := b.path("delete", objectKey)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return b.wrap("delete", objectKey, imagelayer.ErrObjectNotFound)
		}
		return b.wrap("delete", objectKey, err)
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// cleanupEmptyDirectories removes empty parent directories up to the base directory
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir || !strings.HasPrefix(dir, b.baseDir) {
		return
	}
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}
