package imagelayer_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/imagelayer/pkg/imagelayer"
)

// testScene indexes layers by the editable index they were added with, so
// EditableLayers never has to call back into a layer.
type testScene struct {
	mu      sync.Mutex
	byIndex map[int][]*imagelayer.ImageLayer
	rewinds int
}

func newTestScene() *testScene {
	return &testScene{byIndex: make(map[int][]*imagelayer.ImageLayer)}
}

func (s *testScene) Rewind() func() {
	s.mu.Lock()
	s.rewinds++
	return s.mu.Unlock
}

func (s *testScene) EditableLayers(index int) []*imagelayer.ImageLayer {
	return s.byIndex[index]
}

func (s *testScene) add(t *testing.T, duration imagelayer.Time, index int, opts ...imagelayer.Option) *imagelayer.ImageLayer {
	t.Helper()
	opts = append(opts, imagelayer.WithScene(s), imagelayer.WithEditableIndex(index))
	l, err := imagelayer.Make(100, 100, duration, opts...)
	require.NoError(t, err)
	s.byIndex[index] = append(s.byIndex[index], l)
	return l
}

type assignedEvent struct {
	layerID   uuid.UUID
	current   *imagelayer.Content
	broadcast bool
}

type recordingSink struct {
	mu        sync.Mutex
	assigned  []assignedEvent
	destroyed []string
	err       error
}

func (r *recordingSink) ImageAssigned(layerID uuid.UUID, previous, current *imagelayer.Content, broadcast bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assigned = append(r.assigned, assignedEvent{layerID: layerID, current: current, broadcast: broadcast})
	return r.err
}

func (r *recordingSink) UseAfterDestroy(layerID uuid.UUID, op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed = append(r.destroyed, op)
	return r.err
}

func mustContent(t *testing.T, native imagelayer.Time, ranges ...imagelayer.VideoRange) *imagelayer.Content {
	t.Helper()
	c, err := imagelayer.NewContent(native, ranges)
	require.NoError(t, err)
	return c
}

func TestMake(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		l, err := imagelayer.Make(720, 1280, 5_000_000)
		require.NoError(t, err)

		w, h, err := l.Size()
		require.NoError(t, err)
		assert.Equal(t, 720, w)
		assert.Equal(t, 1280, h)

		d, err := l.Duration()
		require.NoError(t, err)
		assert.Equal(t, imagelayer.Time(5_000_000), d)

		idx, err := l.EditableIndex()
		require.NoError(t, err)
		assert.Equal(t, imagelayer.NoEditableIndex, idx)

		cd, err := l.ContentDuration()
		require.NoError(t, err)
		assert.Equal(t, d, cd)

		ranges, err := l.VideoRanges()
		require.NoError(t, err)
		assert.Empty(t, ranges)

		data, err := l.ImageBytes()
		require.NoError(t, err)
		assert.Nil(t, data)

		assert.NotEqual(t, uuid.Nil, l.ID())
		assert.False(t, l.Handle().Released())
	})

	t.Run("negative duration", func(t *testing.T) {
		_, err := imagelayer.Make(1, 1, -1)
		assert.ErrorIs(t, err, imagelayer.ErrNegativeDuration)
	})

	t.Run("invalid policy falls back to default", func(t *testing.T) {
		l, err := imagelayer.Make(1, 1, 1000,
			imagelayer.WithDurationPolicy("bogus"),
			imagelayer.WithDefaultContent(mustContent(t, 9000, imagelayer.VideoRange{Start: 0, Duration: 4000})))
		require.NoError(t, err)
		cd, err := l.ContentDuration()
		require.NoError(t, err)
		assert.Equal(t, imagelayer.Time(4000), cd)
	})
}

func TestImageLayer_DefaultReversion(t *testing.T) {
	payload := append([]byte(nil), webpHeader...)
	l, err := imagelayer.Make(10, 10, 1000, imagelayer.WithImageBytes(payload))
	require.NoError(t, err)

	payload[0] = 'X'
	require.NoError(t, l.SetImage(mustContent(t, 3000)))
	require.NoError(t, l.SetImage(nil))

	data, err := l.ImageBytes()
	require.NoError(t, err)
	assert.Equal(t, webpHeader, data)

	assigned, err := l.AssignedContent()
	require.NoError(t, err)
	assert.Nil(t, assigned)

	data[0] = 'Y'
	again, err := l.ImageBytes()
	require.NoError(t, err)
	assert.Equal(t, webpHeader, again)
}

func TestImageLayer_ReplacementDrivesTimeline(t *testing.T) {
	def := mustContent(t, 2000, imagelayer.VideoRange{Start: 0, Duration: 2000})
	l, err := imagelayer.Make(10, 10, 1000, imagelayer.WithDefaultContent(def))
	require.NoError(t, err)

	cd, err := l.ContentDuration()
	require.NoError(t, err)
	assert.Equal(t, imagelayer.Time(2000), cd)

	ct, err := l.LayerTimeToContent(500)
	require.NoError(t, err)
	assert.Equal(t, imagelayer.Time(1000), ct)

	replacement := mustContent(t, 8000,
		imagelayer.VideoRange{Start: 6000, Duration: 2000},
		imagelayer.VideoRange{Start: 1000, Duration: 500})
	require.NoError(t, l.SetImage(replacement))

	ranges, err := l.VideoRanges()
	require.NoError(t, err)
	assert.Equal(t, []imagelayer.VideoRange{{Start: 1000, Duration: 500}, {Start: 6000, Duration: 2000}}, ranges)

	cd, err = l.ContentDuration()
	require.NoError(t, err)
	assert.Equal(t, imagelayer.Time(8000), cd)

	ct, err = l.LayerTimeToContent(500)
	require.NoError(t, err)
	assert.Equal(t, imagelayer.Time(4000), ct)

	lt, err := l.ContentTimeToLayer(ct)
	require.NoError(t, err)
	assert.Equal(t, imagelayer.Time(500), lt)

	require.NoError(t, l.SetImage(nil))
	cd, err = l.ContentDuration()
	require.NoError(t, err)
	assert.Equal(t, imagelayer.Time(2000), cd)
}

func TestImageLayer_DegenerateTimelines(t *testing.T) {
	t.Run("zero layer duration", func(t *testing.T) {
		l, err := imagelayer.Make(1, 1, 0)
		require.NoError(t, err)
		require.NoError(t, l.SetImage(mustContent(t, 5000, imagelayer.VideoRange{Start: 0, Duration: 5000})))

		for _, in := range []imagelayer.Time{-10, 0, 1, 4999, 1 << 40} {
			got, err := l.LayerTimeToContent(in)
			require.NoError(t, err)
			assert.Equal(t, imagelayer.Time(0), got)
		}
	})

	t.Run("content without length", func(t *testing.T) {
		l, err := imagelayer.Make(1, 1, 1000)
		require.NoError(t, err)
		require.NoError(t, l.SetImage(mustContent(t, 0)))

		cd, err := l.ContentDuration()
		require.NoError(t, err)
		assert.Equal(t, imagelayer.Time(0), cd)

		got, err := l.LayerTimeToContent(500)
		require.NoError(t, err)
		assert.Equal(t, imagelayer.Time(0), got)

		got, err = l.ContentTimeToLayer(500)
		require.NoError(t, err)
		assert.Equal(t, imagelayer.Time(0), got)
	})

	t.Run("zero length range on zero length content", func(t *testing.T) {
		l, err := imagelayer.Make(1, 1, 1000, imagelayer.WithDurationPolicy(imagelayer.LayerPolicy))
		require.NoError(t, err)
		require.NoError(t, l.SetImage(mustContent(t, 0, imagelayer.VideoRange{Start: 0, Duration: 0})))

		cd, err := l.ContentDuration()
		require.NoError(t, err)
		assert.Equal(t, imagelayer.Time(0), cd)

		got, err := l.LayerTimeToContent(1000)
		require.NoError(t, err)
		assert.Equal(t, imagelayer.Time(0), got)
	})
}

func TestImageLayer_MappingStaysInsideContent(t *testing.T) {
	l, err := imagelayer.Make(1, 1, 1000)
	require.NoError(t, err)
	require.NoError(t, l.SetImage(mustContent(t, 1000, imagelayer.VideoRange{Start: 200, Duration: 800})))

	for _, in := range []imagelayer.Time{0, 500, 1000, 5000} {
		got, err := l.LayerTimeToContent(in)
		require.NoError(t, err)
		assert.LessOrEqual(t, got, imagelayer.Time(1000), "layer time %d", in)
	}
}

func TestReplaceEditable(t *testing.T) {
	scene := newTestScene()
	sink := &recordingSink{}
	a := scene.add(t, 1000, 2, imagelayer.WithEventSink(sink))
	b := scene.add(t, 1000, 2, imagelayer.WithEventSink(sink))
	other := scene.add(t, 1000, 5, imagelayer.WithEventSink(sink))
	c := mustContent(t, 3000, imagelayer.VideoRange{Start: 0, Duration: 3000})

	before := scene.rewinds
	require.NoError(t, imagelayer.ReplaceEditable(scene, 2, c))
	assert.Equal(t, before+1, scene.rewinds)

	for _, l := range []*imagelayer.ImageLayer{a, b} {
		got, err := l.AssignedContent()
		require.NoError(t, err)
		assert.Same(t, c, got)
	}
	got, err := other.AssignedContent()
	require.NoError(t, err)
	assert.Nil(t, got)
	require.Len(t, sink.assigned, 2)
	assert.True(t, sink.assigned[0].broadcast)
	assert.True(t, sink.assigned[1].broadcast)

	t.Run("nil resets", func(t *testing.T) {
		require.NoError(t, imagelayer.ReplaceEditable(scene, 2, nil))
		got, err := b.AssignedContent()
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("unknown index", func(t *testing.T) {
		assert.ErrorIs(t, imagelayer.ReplaceEditable(scene, 9, c), imagelayer.ErrUnknownEditableIndex)
		assert.ErrorIs(t, imagelayer.ReplaceEditable(scene, imagelayer.NoEditableIndex, c), imagelayer.ErrUnknownEditableIndex)
	})

	t.Run("released layers do not count", func(t *testing.T) {
		other.Handle().Release()
		assert.ErrorIs(t, imagelayer.ReplaceEditable(scene, 5, c), imagelayer.ErrUnknownEditableIndex)
	})
}

func TestImageLayer_SetImageIsLocal(t *testing.T) {
	scene := newTestScene()
	a := scene.add(t, 1000, 3)
	b := scene.add(t, 1000, 3)
	c := mustContent(t, 1000)

	require.NoError(t, a.SetImage(c))

	got, err := a.AssignedContent()
	require.NoError(t, err)
	assert.Same(t, c, got)

	got, err = b.AssignedContent()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestImageLayer_ReplaceImageBroadcasts(t *testing.T) {
	scene := newTestScene()
	sink := &recordingSink{}
	a := scene.add(t, 1000, 7, imagelayer.WithEventSink(sink))
	b := scene.add(t, 2000, 7, imagelayer.WithEventSink(sink))
	other := scene.add(t, 1000, 8, imagelayer.WithEventSink(sink))
	c := mustContent(t, 4000)

	require.NoError(t, a.ReplaceImage(c))

	for _, l := range []*imagelayer.ImageLayer{a, b} {
		got, err := l.AssignedContent()
		require.NoError(t, err)
		assert.Same(t, c, got)
	}
	got, err := other.AssignedContent()
	require.NoError(t, err)
	assert.Nil(t, got)

	require.Len(t, sink.assigned, 2)
	assert.ElementsMatch(t, []uuid.UUID{a.ID(), b.ID()}, []uuid.UUID{sink.assigned[0].layerID, sink.assigned[1].layerID})
	assert.True(t, sink.assigned[0].broadcast)

	t.Run("nil reverts the whole set", func(t *testing.T) {
		require.NoError(t, b.ReplaceImage(nil))
		for _, l := range []*imagelayer.ImageLayer{a, b} {
			got, err := l.AssignedContent()
			require.NoError(t, err)
			assert.Nil(t, got)
		}
	})

	t.Run("destroyed peers are skipped", func(t *testing.T) {
		b.Handle().Release()
		require.NoError(t, a.ReplaceImage(c))
		got, err := a.AssignedContent()
		require.NoError(t, err)
		assert.Same(t, c, got)
	})
}

func TestImageLayer_ReplaceImageWithoutSharedIndex(t *testing.T) {
	scene := newTestScene()
	a := scene.add(t, 1000, imagelayer.NoEditableIndex)
	b := scene.add(t, 1000, imagelayer.NoEditableIndex)
	c := mustContent(t, 1000)

	require.NoError(t, a.ReplaceImage(c))

	got, err := b.AssignedContent()
	require.NoError(t, err)
	assert.Nil(t, got)

	detached, err := imagelayer.Make(1, 1, 1000, imagelayer.WithEditableIndex(2))
	require.NoError(t, err)
	require.NoError(t, detached.ReplaceImage(c))
	got, err = detached.AssignedContent()
	require.NoError(t, err)
	assert.Same(t, c, got)
}

func TestImageLayer_SetImageIdempotent(t *testing.T) {
	sink := &recordingSink{}
	l, err := imagelayer.Make(1, 1, 1000, imagelayer.WithEventSink(sink))
	require.NoError(t, err)
	c := mustContent(t, 3000, imagelayer.VideoRange{Start: 0, Duration: 3000})

	require.NoError(t, l.SetImage(c))
	once, err := l.Snapshot()
	require.NoError(t, err)

	require.NoError(t, l.SetImage(c))
	twice, err := l.Snapshot()
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Len(t, sink.assigned, 1)

	require.NoError(t, l.SetImage(nil))
	require.NoError(t, l.SetImage(nil))
	assert.Len(t, sink.assigned, 2)
}

func TestImageLayer_UseAfterDestroy(t *testing.T) {
	sink := &recordingSink{}
	l, err := imagelayer.Make(1, 1, 1000,
		imagelayer.WithEventSink(sink),
		imagelayer.WithImageBytes(pngHeader))
	require.NoError(t, err)
	assert.True(t, l.Handle().Release())
	assert.False(t, l.Handle().Release())

	c := mustContent(t, 1000)
	ops := map[string]func() error{
		"size":                  func() error { _, _, err := l.Size(); return err },
		"duration":              func() error { _, err := l.Duration(); return err },
		"editable_index":        func() error { _, err := l.EditableIndex(); return err },
		"content_duration":      func() error { _, err := l.ContentDuration(); return err },
		"video_ranges":          func() error { _, err := l.VideoRanges(); return err },
		"set_image":             func() error { return l.SetImage(c) },
		"set_image_nil":         func() error { return l.SetImage(nil) },
		"replace_image":         func() error { return l.ReplaceImage(c) },
		"assigned_content":      func() error { _, err := l.AssignedContent(); return err },
		"layer_time_to_content": func() error { _, err := l.LayerTimeToContent(1); return err },
		"content_time_to_layer": func() error { _, err := l.ContentTimeToLayer(1); return err },
		"image_bytes":           func() error { _, err := l.ImageBytes(); return err },
		"snapshot":              func() error { _, err := l.Snapshot(); return err },
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			require.Error(t, err)
			assert.ErrorIs(t, err, imagelayer.ErrUseAfterDestroy)

			var layerErr *imagelayer.LayerError
			require.True(t, errors.As(err, &layerErr))
			assert.Equal(t, l.ID(), layerErr.LayerID)
		})
	}
	assert.Len(t, sink.destroyed, len(ops))
	assert.Empty(t, sink.assigned)

	// identity stays readable so callers can report which layer was destroyed
	assert.NotEqual(t, uuid.Nil, l.ID())
	assert.True(t, l.Handle().Released())
	assert.Len(t, sink.destroyed, len(ops))
}

func TestImageLayer_EventSinkFailureDoesNotFail(t *testing.T) {
	sink := &recordingSink{err: errors.New("sink down")}
	l, err := imagelayer.Make(1, 1, 1000, imagelayer.WithEventSink(sink))
	require.NoError(t, err)

	assert.NoError(t, l.SetImage(mustContent(t, 1000)))
	assert.Len(t, sink.assigned, 1)
}

func TestSnapshots(t *testing.T) {
	scene := newTestScene()
	a := scene.add(t, 1000, 1)
	b := scene.add(t, 1000, 1)
	c := mustContent(t, 5000, imagelayer.VideoRange{Start: 1000, Duration: 4000})
	require.NoError(t, a.ReplaceImage(c))

	b.Handle().Release()
	before := scene.rewinds
	snaps, err := imagelayer.Snapshots(scene, []*imagelayer.ImageLayer{a, b})
	require.NoError(t, err)
	assert.Equal(t, before+1, scene.rewinds)

	require.Len(t, snaps, 1)
	assert.Equal(t, a.ID(), snaps[0].LayerID)
	assert.Same(t, c, snaps[0].Content)
	assert.Equal(t, imagelayer.Time(5000), snaps[0].ContentDuration)
	assert.Equal(t, imagelayer.Time(2500), snaps[0].Mapper().LayerTimeToContent(500))

	foreign, err := imagelayer.Make(1, 1, 1)
	require.NoError(t, err)
	_, err = imagelayer.Snapshots(scene, []*imagelayer.ImageLayer{a, foreign})
	assert.ErrorIs(t, err, imagelayer.ErrForeignScene)
}

func TestImageLayer_ConcurrentReadersSeeWholeBroadcast(t *testing.T) {
	scene := newTestScene()
	a := scene.add(t, 1000, 5)
	b := scene.add(t, 1000, 5)
	contents := []*imagelayer.Content{mustContent(t, 1000), mustContent(t, 2000)}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = a.ReplaceImage(contents[i%2])
		}
	}()

	for i := 0; i < 200; i++ {
		snaps, err := imagelayer.Snapshots(scene, []*imagelayer.ImageLayer{a, b})
		require.NoError(t, err)
		require.Len(t, snaps, 2)
		assert.Same(t, snaps[0].Content, snaps[1].Content)
	}
	wg.Wait()
}
