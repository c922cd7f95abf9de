package fs_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/imagelayer/pkg/imagelayer"
	"github.com/tendant/imagelayer/pkg/imagelayer/storage/fs"
)

func TestFSBackend(t *testing.T) {
	baseDir := t.TempDir()
	backend, err := fs.New(fs.Config{BaseDir: baseDir})
	require.NoError(t, err)

	ctx := context.Background()
	key := "scene-1/layers/cover.webp"
	payload := []byte("RIFF....WEBPVP8 ")

	t.Run("Upload", func(t *testing.T) {
		require.NoError(t, backend.Upload(ctx, key, bytes.NewReader(payload)))
		_, err := os.Stat(filepath.Join(baseDir, "scene-1", "layers", "cover.webp"))
		assert.NoError(t, err)
	})

	t.Run("Download", func(t *testing.T) {
		reader, err := backend.Download(ctx, key)
		require.NoError(t, err)
		defer reader.Close()
		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	})

	t.Run("Key escaping base directory", func(t *testing.T) {
		err := backend.Upload(ctx, "../outside", bytes.NewReader(payload))
		var storageErr *imagelayer.StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.Equal(t, "fs", storageErr.Backend)
	})

	t.Run("Delete cleans up directories", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, key))
		_, err := os.Stat(filepath.Join(baseDir, "scene-1"))
		assert.True(t, os.IsNotExist(err))

		_, err = backend.Download(ctx, key)
		assert.ErrorIs(t, err, imagelayer.ErrObjectNotFound)
		assert.ErrorIs(t, backend.Delete(ctx, key), imagelayer.ErrObjectNotFound)
	})

	t.Run("Base directory required", func(t *testing.T) {
		_, err := fs.New(fs.Config{})
		assert.Error(t, err)
	})
}
