// Package scene provides an in-memory scene graph for image layers: the
// rewind barrier they quiesce against, the index of layers sharing an
// editable index, and ownership of their engine handles.
package scene

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/imagelayer/pkg/imagelayer"
)

var _ imagelayer.Scene = (*Scene)(nil)

// Scene owns a set of image layers.
type Scene struct {
	// barrier is held for every layer operation, render snapshot and
	// membership change.
	barrier sync.Mutex

	mu      sync.RWMutex
	id      uuid.UUID
	layers  []*imagelayer.ImageLayer
	byID    map[uuid.UUID]*imagelayer.ImageLayer
	byIndex map[int][]*imagelayer.ImageLayer
	indexOf map[uuid.UUID]int
	// destroyed remembers released layer ids so callers can tell them
	// apart from ids that never existed.
	destroyed map[uuid.UUID]struct{}

	layerOptions []imagelayer.Option
	logger       *slog.Logger
}

// Option represents a functional option for configuring a scene
type Option func(*Scene)

// WithLayerOptions applies opts to every layer the scene creates
func WithLayerOptions(opts ...imagelayer.Option) Option {
	return func(s *Scene) {
		s.layerOptions = append(s.layerOptions, opts...)
	}
}

// WithLogger sets the scene logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scene) {
		s.logger = logger
	}
}

// New creates an empty scene
func New(id uuid.UUID, opts ...Option) *Scene {
	s := &Scene{
		id:        id,
		byID:      make(map[uuid.UUID]*imagelayer.ImageLayer),
		byIndex:   make(map[int][]*imagelayer.ImageLayer),
		indexOf:   make(map[uuid.UUID]int),
		destroyed: make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// ID returns the scene identity
func (s *Scene) ID() uuid.UUID { return s.id }

// Rewind acquires the scene barrier.
func (s *Scene) Rewind() func() {
	s.barrier.Lock()
	return s.barrier.Unlock
}

// EditableLayers returns the live layers added with editableIndex.
func (s *Scene) EditableLayers(editableIndex int) []*imagelayer.ImageLayer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*imagelayer.ImageLayer(nil), s.byIndex[editableIndex]...)
}

// LayersByEditableIndex lists the live layers sharing editableIndex in the
// order they were added. NoEditableIndex matches nothing.
func (s *Scene) LayersByEditableIndex(editableIndex int) []*imagelayer.ImageLayer {
	return s.EditableLayers(editableIndex)
}

// NumImages returns how many distinct editable indices the live layers use.
func (s *Scene) NumImages() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byIndex)
}

// EditableIndices returns the editable indices in use, ascending
func (s *Scene) EditableIndices() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, len(s.byIndex))
	for idx := range s.byIndex {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// ReplaceImage replaces the content of every layer sharing editableIndex in
// one quiesced step. A nil content resets them to their default content.
func (s *Scene) ReplaceImage(editableIndex int, content *imagelayer.Content) error {
	if err := imagelayer.ReplaceEditable(s, editableIndex, content); err != nil {
		return err
	}
	s.logger.Debug("editable image replaced", "scene_id", s.id, "editable_index", editableIndex, "reset", content == nil)
	return nil
}

// Add makes a layer attached to the scene. Options given here are applied
// after the scene-wide layer options.
func (s *Scene) Add(width, height int, duration imagelayer.Time, editableIndex int, opts ...imagelayer.Option) (*imagelayer.ImageLayer, error) {
	all := make([]imagelayer.Option, 0, len(s.layerOptions)+len(opts)+2)
	all = append(all, s.layerOptions...)
	all = append(all, opts...)
	all = append(all, imagelayer.WithScene(s), imagelayer.WithEditableIndex(editableIndex))

	layer, err := imagelayer.Make(width, height, duration, all...)
	if err != nil {
		return nil, err
	}

	release := s.Rewind()
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[layer.ID()]; exists {
		layer.Handle().Release()
		return nil, fmt.Errorf("layer %s already in scene %s", layer.ID(), s.id)
	}
	s.layers = append(s.layers, layer)
	s.byID[layer.ID()] = layer
	s.indexOf[layer.ID()] = editableIndex
	if editableIndex != imagelayer.NoEditableIndex {
		s.byIndex[editableIndex] = append(s.byIndex[editableIndex], layer)
	}
	return layer, nil
}

// Layer looks up a live layer by id
func (s *Scene) Layer(id uuid.UUID) (*imagelayer.ImageLayer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.byID[id]
	return l, ok
}

// Destroyed reports whether id names a layer this scene has destroyed
func (s *Scene) Destroyed(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.destroyed[id]
	return ok
}

// Layers returns the live layers in the order they were added
func (s *Scene) Layers() []*imagelayer.ImageLayer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*imagelayer.ImageLayer(nil), s.layers...)
}

// Destroy releases the layer's handle and removes it from the scene. The
// layer value stays reachable to callers holding it, but every operation on
// it fails from now on.
func (s *Scene) Destroy(id uuid.UUID) error {
	release := s.Rewind()
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	layer, ok := s.byID[id]
	if !ok {
		return imagelayer.ErrLayerNotFound
	}
	layer.Handle().Release()

	delete(s.byID, id)
	s.layers = remove(s.layers, layer)
	if idx := s.indexOf[id]; idx != imagelayer.NoEditableIndex {
		s.byIndex[idx] = remove(s.byIndex[idx], layer)
		if len(s.byIndex[idx]) == 0 {
			delete(s.byIndex, idx)
		}
	}
	delete(s.indexOf, id)
	s.destroyed[id] = struct{}{}

	s.logger.Debug("layer destroyed", "scene_id", s.id, "layer_id", id)
	return nil
}

// Close destroys every layer of the scene
func (s *Scene) Close() {
	for _, l := range s.Layers() {
		_ = s.Destroy(l.ID())
	}
}

// Snapshots captures the replacement state of every live layer in one
// quiesced step, for the render pipeline.
func (s *Scene) Snapshots() ([]imagelayer.Snapshot, error) {
	return imagelayer.Snapshots(s, s.Layers())
}

func remove(layers []*imagelayer.ImageLayer, target *imagelayer.ImageLayer) []*imagelayer.ImageLayer {
	out := layers[:0]
	for _, l := range layers {
		if l != target {
			out = append(out, l)
		}
	}
	return out
}

// Load builds a scene from its persisted description. Default payloads are
// fetched from blobs; records without a payload key get no default bytes.
func Load(ctx context.Context, sceneID uuid.UUID, repo imagelayer.Repository, blobs imagelayer.BlobStore, opts ...Option) (*Scene, error) {
	records, err := repo.ListLayers(ctx, sceneID)
	if err != nil {
		return nil, fmt.Errorf("failed to list layers of scene %s: %w", sceneID, err)
	}

	s := New(sceneID, opts...)
	for _, rec := range records {
		layerOpts, err := recordOptions(ctx, rec, blobs)
		if err != nil {
			s.Close()
			return nil, err
		}
		if _, err := s.Add(rec.Width, rec.Height, rec.Duration, rec.EditableIndex, layerOpts...); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to add layer %s: %w", rec.ID, err)
		}
	}

	s.logger.Info("scene loaded", "scene_id", sceneID, "layers", len(records))
	return s, nil
}

func recordOptions(ctx context.Context, rec *imagelayer.LayerRecord, blobs imagelayer.BlobStore) ([]imagelayer.Option, error) {
	opts := []imagelayer.Option{imagelayer.WithLayerID(rec.ID)}

	if rec.DefaultContentDuration > 0 || len(rec.DefaultVideoRanges) > 0 {
		native := rec.DefaultContentDuration
		if native == 0 {
			// records written without a content length span their ranges
			native = imagelayer.ExtentPolicy.ContentDuration(0, rec.DefaultVideoRanges)
		}
		def, err := imagelayer.NewContent(native, rec.DefaultVideoRanges)
		if err != nil {
			return nil, fmt.Errorf("invalid default content for layer %s: %w", rec.ID, err)
		}
		opts = append(opts, imagelayer.WithDefaultContent(def))
	}

	if rec.DefaultImageKey == "" {
		return opts, nil
	}
	if blobs == nil {
		return nil, errors.New("blob store is required to load default images")
	}
	rc, err := blobs.Download(ctx, rec.DefaultImageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to download default image of layer %s: %w", rec.ID, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read default image of layer %s: %w", rec.ID, err)
	}
	return append(opts, imagelayer.WithImageBytes(data)), nil
}
