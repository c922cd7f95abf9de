package memory_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/imagelayer/pkg/imagelayer"
	"github.com/tendant/imagelayer/pkg/imagelayer/storage/memory"
)

func TestMemoryBackend(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()
	payload := []byte("default payload")

	t.Run("Upload and download", func(t *testing.T) {
		require.NoError(t, backend.Upload(ctx, "layers/cover.webp", bytes.NewReader(payload)))

		reader, err := backend.Download(ctx, "layers/cover.webp")
		require.NoError(t, err)
		defer reader.Close()

		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, backend.Upload(ctx, "layers/cover.webp", bytes.NewReader([]byte("v2"))))
		reader, err := backend.Download(ctx, "layers/cover.webp")
		require.NoError(t, err)
		data, _ := io.ReadAll(reader)
		assert.Equal(t, []byte("v2"), data)
	})

	t.Run("Missing object", func(t *testing.T) {
		_, err := backend.Download(ctx, "missing")
		assert.ErrorIs(t, err, imagelayer.ErrObjectNotFound)

		var storageErr *imagelayer.StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.Equal(t, "memory", storageErr.Backend)
		assert.Equal(t, "missing", storageErr.Key)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, "layers/cover.webp"))
		_, err := backend.Download(ctx, "layers/cover.webp")
		assert.ErrorIs(t, err, imagelayer.ErrObjectNotFound)
		assert.ErrorIs(t, backend.Delete(ctx, "layers/cover.webp"), imagelayer.ErrObjectNotFound)
	})
}
