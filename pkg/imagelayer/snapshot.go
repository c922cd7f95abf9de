package imagelayer

import "github.com/google/uuid"

// Snapshot is the replacement state of a layer as seen by one render pass.
type Snapshot struct {
	LayerID         uuid.UUID
	Width           int
	Height          int
	Duration        Time
	EditableIndex   int
	ContentDuration Time
	// Content is the assigned replacement; nil means the default content.
	Content     *Content
	VideoRanges []VideoRange
}

// Mapper returns the time mapping in effect when the snapshot was taken.
func (s Snapshot) Mapper() TimeMapper {
	return NewTimeMapper(s.Duration, s.ContentDuration)
}

func (l *ImageLayer) snapshotLocked() Snapshot {
	return Snapshot{
		LayerID:         l.id,
		Width:           l.width,
		Height:          l.height,
		Duration:        l.duration,
		EditableIndex:   l.editableIndex,
		ContentDuration: l.contentDurationLocked(),
		Content:         l.controller.assigned,
		VideoRanges:     l.registry.videoRanges(l.activeLocked()),
	}
}

// Snapshots captures every live layer under a single barrier of scene, so no
// broadcast can land between two of them. Released layers are skipped.
func Snapshots(scene Scene, layers []*ImageLayer) ([]Snapshot, error) {
	release := scene.Rewind()
	defer release()

	out := make([]Snapshot, 0, len(layers))
	for _, l := range layers {
		if l.scene != scene {
			return nil, &LayerError{LayerID: l.id, Op: "snapshot", Err: ErrForeignScene}
		}
		if l.handle.Released() {
			continue
		}
		out = append(out, l.snapshotLocked())
	}
	return out, nil
}
