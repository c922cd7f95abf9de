package imagelayer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tendant/imagelayer/pkg/imagelayer"
)

func TestTimeMapper_LayerTimeToContent(t *testing.T) {
	tests := []struct {
		name            string
		layerDuration   imagelayer.Time
		contentDuration imagelayer.Time
		in              imagelayer.Time
		want            imagelayer.Time
	}{
		{name: "identity", layerDuration: 1000, contentDuration: 1000, in: 250, want: 250},
		{name: "stretch", layerDuration: 1000, contentDuration: 3000, in: 250, want: 750},
		{name: "compress", layerDuration: 3000, contentDuration: 1000, in: 1500, want: 500},
		{name: "rounds half up", layerDuration: 4, contentDuration: 2, in: 1, want: 1},
		{name: "clamps below zero", layerDuration: 1000, contentDuration: 2000, in: -50, want: 0},
		{name: "clamps past end", layerDuration: 1000, contentDuration: 2000, in: 5000, want: 2000},
		{name: "zero layer duration", layerDuration: 0, contentDuration: 2000, in: 500, want: 0},
		{name: "zero content duration", layerDuration: 1000, contentDuration: 0, in: 500, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := imagelayer.NewTimeMapper(tt.layerDuration, tt.contentDuration)
			assert.Equal(t, tt.want, m.LayerTimeToContent(tt.in))
		})
	}
}

func TestTimeMapper_ContentTimeToLayer(t *testing.T) {
	m := imagelayer.NewTimeMapper(1000, 4000)

	assert.Equal(t, imagelayer.Time(0), m.ContentTimeToLayer(-1))
	assert.Equal(t, imagelayer.Time(250), m.ContentTimeToLayer(1000))
	assert.Equal(t, imagelayer.Time(1000), m.ContentTimeToLayer(4000))
	assert.Equal(t, imagelayer.Time(1000), m.ContentTimeToLayer(9999))

	degenerate := imagelayer.NewTimeMapper(0, 4000)
	assert.True(t, degenerate.Degenerate())
	assert.Equal(t, imagelayer.Time(0), degenerate.ContentTimeToLayer(1000))
}

func TestTimeMapper_RoundTrip(t *testing.T) {
	t.Run("content at least as long as layer is exact", func(t *testing.T) {
		for _, content := range []imagelayer.Time{1000, 1001, 3333, 999_983} {
			m := imagelayer.NewTimeMapper(1000, content)
			for lt := imagelayer.Time(0); lt < 1000; lt++ {
				if got := m.ContentTimeToLayer(m.LayerTimeToContent(lt)); got != lt {
					t.Fatalf("content=%d: round trip of %d gave %d", content, lt, got)
				}
			}
		}
	})

	t.Run("shorter content stays within ceil(D/2C)", func(t *testing.T) {
		tests := []struct {
			layer, content imagelayer.Time
			step           imagelayer.Time
		}{
			{layer: 3333, content: 1000, step: 1},
			{layer: 5_000_000, content: 1_000_000, step: 7},
			{layer: 1000, content: 3, step: 1},
		}
		for _, tt := range tests {
			m := imagelayer.NewTimeMapper(tt.layer, tt.content)
			bound := (tt.layer + 2*tt.content - 1) / (2 * tt.content)
			var worst imagelayer.Time
			for lt := imagelayer.Time(0); lt <= tt.layer; lt += tt.step {
				diff := m.ContentTimeToLayer(m.LayerTimeToContent(lt)) - lt
				if diff < 0 {
					diff = -diff
				}
				if diff > worst {
					worst = diff
				}
			}
			assert.LessOrEqual(t, worst, bound, "D=%d C=%d", tt.layer, tt.content)
		}
	})
}

func TestTimeMapper_LongTimelines(t *testing.T) {
	// One hour against two hours: the intermediate product exceeds int64.
	const hour = imagelayer.Time(3_600_000_000)
	m := imagelayer.NewTimeMapper(hour, 2*hour)

	assert.Equal(t, hour, m.LayerTimeToContent(hour/2))
	assert.Equal(t, 2*hour, m.LayerTimeToContent(hour))
	assert.Equal(t, hour/2, m.ContentTimeToLayer(hour))
	assert.Equal(t, hour-1, m.ContentTimeToLayer(m.LayerTimeToContent(hour-1)))
}

func TestTimeMapper_ZeroValue(t *testing.T) {
	var m imagelayer.TimeMapper
	assert.True(t, m.Degenerate())
	assert.Equal(t, imagelayer.Time(0), m.LayerTimeToContent(123))
	assert.Equal(t, imagelayer.Time(0), m.ContentTimeToLayer(123))
}
