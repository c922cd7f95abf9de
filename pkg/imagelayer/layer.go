package imagelayer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var (
	_ Placement   = (*ImageLayer)(nil)
	_ Replaceable = (*ImageLayer)(nil)
)

// placement is the generic layer part of an ImageLayer. It is fixed at
// creation.
type placement struct {
	id            uuid.UUID
	width         int
	height        int
	duration      Time
	editableIndex int
}

// ImageLayer is a layer whose visible content is a still image or video clip
// that can be replaced at runtime.
type ImageLayer struct {
	placement

	handle    *Handle
	scene     Scene
	eventSink EventSink
	logger    *slog.Logger

	registry       videoRangeRegistry
	controller     replacementController
	defaultContent *Content
	defaultBytes   []byte
}

// Option represents a functional option for configuring a layer
type Option func(*ImageLayer)

// WithLayerID sets the layer identity instead of generating one
func WithLayerID(id uuid.UUID) Option {
	return func(l *ImageLayer) {
		l.id = id
	}
}

// WithEditableIndex sets the editable index shared with other layers of the scene
func WithEditableIndex(index int) Option {
	return func(l *ImageLayer) {
		l.editableIndex = index
	}
}

// WithImageBytes sets the default content payload
func WithImageBytes(data []byte) Option {
	return func(l *ImageLayer) {
		if data != nil {
			l.defaultBytes = append([]byte(nil), data...)
		}
	}
}

// WithDefaultContent describes the default content's timeline and ranges
func WithDefaultContent(content *Content) Option {
	return func(l *ImageLayer) {
		l.defaultContent = content
	}
}

// WithScene attaches the layer to a scene collaborator
func WithScene(scene Scene) Option {
	return func(l *ImageLayer) {
		l.scene = scene
	}
}

// WithHandle backs the layer with an engine handle owned by the caller
func WithHandle(handle *Handle) Option {
	return func(l *ImageLayer) {
		l.handle = handle
	}
}

// WithDurationPolicy sets the rule deriving the content duration
func WithDurationPolicy(policy DurationPolicy) Option {
	return func(l *ImageLayer) {
		l.registry.policy = policy
	}
}

// WithEventSink sets the event sink for the layer
func WithEventSink(sink EventSink) Option {
	return func(l *ImageLayer) {
		l.eventSink = sink
	}
}

// WithLogger sets the logger used when an event sink fails
func WithLogger(logger *slog.Logger) Option {
	return func(l *ImageLayer) {
		l.logger = logger
	}
}

// Make creates an image layer of the given size and duration. Width and
// height are placement metadata and are carried as is.
func Make(width, height int, duration Time, opts ...Option) (*ImageLayer, error) {
	if duration < 0 {
		return nil, ErrNegativeDuration
	}

	l := &ImageLayer{
		placement: placement{
			id:            uuid.New(),
			width:         width,
			height:        height,
			duration:      duration,
			editableIndex: NoEditableIndex,
		},
		registry: videoRangeRegistry{policy: DefaultDurationPolicy},
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.handle == nil {
		l.handle = NewHandle()
	}
	if l.scene == nil {
		l.scene = &detachedScene{}
	}
	if !l.registry.policy.IsValid() {
		l.registry.policy = DefaultDurationPolicy
	}
	if l.eventSink == nil {
		l.eventSink = NewNoopEventSink()
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l, nil
}

// ID returns the layer identity. ID and Handle are identity accessors: unlike
// every other method they keep working after the handle is released, so a
// destroyed layer can still be named in logs and errors.
func (l *ImageLayer) ID() uuid.UUID { return l.id }

// Handle returns the engine handle backing the layer, released or not.
func (l *ImageLayer) Handle() *Handle { return l.handle }

// Size returns the placement width and height.
func (l *ImageLayer) Size() (width, height int, err error) {
	err = l.guard("size", func() {
		width, height = l.width, l.height
	})
	return width, height, err
}

// Duration returns the length of the layer timeline.
func (l *ImageLayer) Duration() (Time, error) {
	var d Time
	err := l.guard("duration", func() {
		d = l.duration
	})
	return d, err
}

// EditableIndex returns the index shared with the layers edited in lockstep.
func (l *ImageLayer) EditableIndex() (int, error) {
	var idx int
	err := l.guard("editable_index", func() {
		idx = l.editableIndex
	})
	return idx, err
}

// ContentDuration returns the minimal content length, in microseconds,
// required to replace this layer's content.
func (l *ImageLayer) ContentDuration() (Time, error) {
	var d Time
	err := l.guard("content_duration", func() {
		d = l.contentDurationLocked()
	})
	return d, err
}

// VideoRanges returns the replacement windows of the active content,
// ascending by start.
func (l *ImageLayer) VideoRanges() ([]VideoRange, error) {
	var ranges []VideoRange
	err := l.guard("video_ranges", func() {
		ranges = l.registry.videoRanges(l.activeLocked())
	})
	return ranges, err
}

// SetImage replaces the content of this layer only. A nil content resets the
// layer to its default content.
func (l *ImageLayer) SetImage(content *Content) error {
	var (
		previous *Content
		changed  bool
	)
	err := l.guard("set_image", func() {
		previous, changed = l.controller.assign(content)
	})
	if err != nil {
		return err
	}
	if changed {
		l.publishAssigned(previous, content, false)
	}
	return nil
}

type assignment struct {
	layer    *ImageLayer
	previous *Content
}

// ReplaceImage replaces the content of this layer and of every layer in the
// scene sharing its editable index, in one quiesced step. A nil content
// resets them all to their default content.
func (l *ImageLayer) ReplaceImage(content *Content) error {
	var changes []assignment
	err := l.guard("replace_image", func() {
		for _, peer := range l.broadcastSetLocked() {
			if previous, changed := peer.controller.assign(content); changed {
				changes = append(changes, assignment{layer: peer, previous: previous})
			}
		}
	})
	if err != nil {
		return err
	}
	for _, c := range changes {
		c.layer.publishAssigned(c.previous, content, true)
	}
	return nil
}

// ReplaceEditable replaces the content of every live layer of scene sharing
// editableIndex in one quiesced step. A nil content resets them to their
// default content. It fails with ErrUnknownEditableIndex when no live layer
// has the index.
func ReplaceEditable(scene Scene, editableIndex int, content *Content) error {
	if editableIndex == NoEditableIndex {
		return fmt.Errorf("%w: %d", ErrUnknownEditableIndex, editableIndex)
	}

	var (
		changes []assignment
		found   bool
	)
	release := scene.Rewind()
	for _, l := range scene.EditableLayers(editableIndex) {
		if l == nil || l.scene != scene || l.editableIndex != editableIndex || l.handle.Released() {
			continue
		}
		found = true
		if previous, changed := l.controller.assign(content); changed {
			changes = append(changes, assignment{layer: l, previous: previous})
		}
	}
	release()

	if !found {
		return fmt.Errorf("%w: %d", ErrUnknownEditableIndex, editableIndex)
	}
	for _, c := range changes {
		c.layer.publishAssigned(c.previous, content, true)
	}
	return nil
}

// AssignedContent returns the replacement content, or nil when the layer
// shows its default content.
func (l *ImageLayer) AssignedContent() (*Content, error) {
	var c *Content
	err := l.guard("assigned_content", func() {
		c = l.controller.assigned
	})
	return c, err
}

// LayerTimeToContent converts a time on the layer timeline to the active
// content's timeline.
func (l *ImageLayer) LayerTimeToContent(layerTime Time) (Time, error) {
	var t Time
	err := l.guard("layer_time_to_content", func() {
		t = l.mapperLocked().LayerTimeToContent(layerTime)
	})
	return t, err
}

// ContentTimeToLayer converts a time on the active content's timeline to the
// layer timeline.
func (l *ImageLayer) ContentTimeToLayer(contentTime Time) (Time, error) {
	var t Time
	err := l.guard("content_time_to_layer", func() {
		t = l.mapperLocked().ContentTimeToLayer(contentTime)
	})
	return t, err
}

// ImageBytes returns the default content payload regardless of any
// replacement, or nil when the layer has none.
func (l *ImageLayer) ImageBytes() ([]byte, error) {
	var data []byte
	err := l.guard("image_bytes", func() {
		if l.defaultBytes != nil {
			data = append([]byte(nil), l.defaultBytes...)
		}
	})
	return data, err
}

// Snapshot returns a consistent copy of the layer's replacement state.
func (l *ImageLayer) Snapshot() (Snapshot, error) {
	var s Snapshot
	err := l.guard("snapshot", func() {
		s = l.snapshotLocked()
	})
	return s, err
}

// guard runs fn inside the scene barrier, failing closed when the handle has
// been released before or while waiting for the barrier.
func (l *ImageLayer) guard(op string, fn func()) error {
	if !l.withBarrier(fn) {
		if err := l.eventSink.UseAfterDestroy(l.id, op); err != nil {
			l.logger.Warn("event sink failed", "layer_id", l.id, "op", op, "error", err)
		}
		return &LayerError{LayerID: l.id, Op: op, Err: ErrUseAfterDestroy}
	}
	return nil
}

func (l *ImageLayer) withBarrier(fn func()) bool {
	if l.handle.Released() {
		return false
	}
	release := l.scene.Rewind()
	defer release()
	if l.handle.Released() {
		return false
	}
	fn()
	return true
}

func (l *ImageLayer) activeLocked() *Content {
	return l.controller.active(l.defaultContent)
}

func (l *ImageLayer) contentDurationLocked() Time {
	return l.registry.contentDuration(l.duration, l.activeLocked())
}

func (l *ImageLayer) mapperLocked() TimeMapper {
	return NewTimeMapper(l.duration, l.contentDurationLocked())
}

// broadcastSetLocked resolves this layer plus every live peer of the same
// scene sharing its editable index.
func (l *ImageLayer) broadcastSetLocked() []*ImageLayer {
	set := []*ImageLayer{l}
	if l.editableIndex == NoEditableIndex {
		return set
	}
	seen := map[*ImageLayer]bool{l: true}
	for _, peer := range l.scene.EditableLayers(l.editableIndex) {
		if peer == nil || seen[peer] {
			continue
		}
		if peer.scene != l.scene || peer.editableIndex != l.editableIndex || peer.handle.Released() {
			continue
		}
		seen[peer] = true
		set = append(set, peer)
	}
	return set
}

func (l *ImageLayer) publishAssigned(previous, current *Content, broadcast bool) {
	if err := l.eventSink.ImageAssigned(l.id, previous, current, broadcast); err != nil {
		l.logger.Warn("event sink failed", "layer_id", l.id, "op", "image_assigned", "error", err)
	}
}

// detachedScene is the barrier of a layer made outside any scene.
type detachedScene struct {
	mu sync.Mutex
}

func (s *detachedScene) Rewind() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *detachedScene) EditableLayers(int) []*ImageLayer {
	return nil
}
