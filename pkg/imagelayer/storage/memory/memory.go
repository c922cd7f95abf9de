package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/tendant/imagelayer/pkg/imagelayer"
)

// Backend is an in-memory implementation of the imagelayer.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New creates a new in-memory storage backend
func New() imagelayer.BlobStore {
	return &Backend{
		objects: make(map[string][]byte),
	}
}

// Upload stores the payload under objectKey, replacing any previous payload
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return &imagelayer.StorageError{Backend: "memory", Key: objectKey, Op: "upload", Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[objectKey] = data
	return nil
}

// Download returns a reader over a copy of the stored payload
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, &imagelayer.StorageError{Backend: "memory", Key: objectKey, Op: "download", Err: imagelayer.ErrObjectNotFound}
	}

	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return &imagelayer.StorageError{Backend: "memory", Key: objectKey, Op: "delete", Err: imagelayer.ErrObjectNotFound}
	}

	delete(b.objects, objectKey)
	return nil
}
