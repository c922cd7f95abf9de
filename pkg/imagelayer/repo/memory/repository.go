package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/imagelayer/pkg/imagelayer"
)

// Repository implements imagelayer.Repository using in-memory storage
type Repository struct {
	mu      sync.RWMutex
	layers  map[uuid.UUID]*imagelayer.LayerRecord
	byScene map[uuid.UUID][]uuid.UUID // scene_id -> []layer_id, creation order
}

// New creates a new in-memory repository
func New() imagelayer.Repository {
	return &Repository{
		layers:  make(map[uuid.UUID]*imagelayer.LayerRecord),
		byScene: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (r *Repository) CreateLayer(ctx context.Context, record *imagelayer.LayerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if _, exists := r.layers[record.ID]; exists {
		return fmt.Errorf("layer %s already exists", record.ID)
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	// Create a copy to avoid external modifications
	r.layers[record.ID] = copyRecord(record)
	r.byScene[record.SceneID] = append(r.byScene[record.SceneID], record.ID)
	return nil
}

func (r *Repository) GetLayer(ctx context.Context, id uuid.UUID) (*imagelayer.LayerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.layers[id]
	if !exists {
		return nil, imagelayer.ErrLayerNotFound
	}
	// Return a copy to prevent external modifications
	return copyRecord(record), nil
}

func (r *Repository) ListLayers(ctx context.Context, sceneID uuid.UUID) ([]*imagelayer.LayerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byScene[sceneID]
	result := make([]*imagelayer.LayerRecord, 0, len(ids))
	for _, id := range ids {
		result = append(result, copyRecord(r.layers[id]))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) DeleteLayer(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.layers[id]
	if !exists {
		return imagelayer.ErrLayerNotFound
	}
	delete(r.layers, id)

	ids := r.byScene[record.SceneID]
	for i, layerID := range ids {
		if layerID == id {
			r.byScene[record.SceneID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.byScene[record.SceneID]) == 0 {
		delete(r.byScene, record.SceneID)
	}
	return nil
}

func copyRecord(record *imagelayer.LayerRecord) *imagelayer.LayerRecord {
	c := *record
	if record.DefaultVideoRanges != nil {
		c.DefaultVideoRanges = append([]imagelayer.VideoRange(nil), record.DefaultVideoRanges...)
	}
	return &c
}
