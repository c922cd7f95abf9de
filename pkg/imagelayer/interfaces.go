package imagelayer

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Scene is the scene-graph collaborator a layer belongs to.
type Scene interface {
	// Rewind quiesces the scene and returns the function ending the quiesced
	// step. No frame is rendered or advanced between the two.
	Rewind() (release func())

	// EditableLayers returns every layer of the scene sharing editableIndex.
	// It is called with the barrier held and must not call Rewind.
	EditableLayers(editableIndex int) []*ImageLayer
}

// Placement is the generic layer capability: identity, size and timing.
type Placement interface {
	ID() uuid.UUID
	Size() (width, height int, err error)
	Duration() (Time, error)
	EditableIndex() (int, error)
}

// Replaceable is the content-replacement capability of a layer.
type Replaceable interface {
	ContentDuration() (Time, error)
	VideoRanges() ([]VideoRange, error)
	SetImage(content *Content) error
	ReplaceImage(content *Content) error
	LayerTimeToContent(layerTime Time) (Time, error)
	ContentTimeToLayer(contentTime Time) (Time, error)
	ImageBytes() ([]byte, error)
}

// EventSink receives replacement and lifetime events. Events are published
// after the scene barrier is released.
type EventSink interface {
	// ImageAssigned is fired for each layer whose assigned content changed
	ImageAssigned(layerID uuid.UUID, previous, current *Content, broadcast bool) error

	// UseAfterDestroy is fired when an operation hits a released layer
	UseAfterDestroy(layerID uuid.UUID, op string) error
}

// LayerRecord is the persisted scene description of one image layer.
type LayerRecord struct {
	ID                     uuid.UUID    `json:"id"`
	SceneID                uuid.UUID    `json:"scene_id"`
	Name                   string       `json:"name,omitempty"`
	Width                  int          `json:"width"`
	Height                 int          `json:"height"`
	Duration               Time         `json:"duration"`
	EditableIndex          int          `json:"editable_index"`
	DefaultImageKey        string       `json:"default_image_key,omitempty"`
	DefaultContentDuration Time         `json:"default_content_duration"`
	DefaultVideoRanges     []VideoRange `json:"default_video_ranges,omitempty"`
	CreatedAt              time.Time    `json:"created_at"`
	UpdatedAt              time.Time    `json:"updated_at"`
}

// Repository persists scene descriptions
type Repository interface {
	CreateLayer(ctx context.Context, record *LayerRecord) error
	GetLayer(ctx context.Context, id uuid.UUID) (*LayerRecord, error)
	// ListLayers returns the layers of a scene in creation order
	ListLayers(ctx context.Context, sceneID uuid.UUID) ([]*LayerRecord, error)
	DeleteLayer(ctx context.Context, id uuid.UUID) error
}

// BlobStore stores opaque image payloads
type BlobStore interface {
	Upload(ctx context.Context, key string, reader io.Reader) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
