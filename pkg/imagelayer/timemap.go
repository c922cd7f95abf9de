package imagelayer

import "math/bits"

// TimeMapper converts times between a layer's timeline [0, layerDuration]
// and its content's timeline [0, contentDuration] by linear scaling.
// The zero value maps everything to 0.
type TimeMapper struct {
	layerDuration   Time
	contentDuration Time
}

// NewTimeMapper returns a mapper for the given durations. Negative durations
// are treated as zero.
func NewTimeMapper(layerDuration, contentDuration Time) TimeMapper {
	return TimeMapper{
		layerDuration:   max(layerDuration, 0),
		contentDuration: max(contentDuration, 0),
	}
}

// LayerDuration returns the layer-side length of the mapping.
func (m TimeMapper) LayerDuration() Time { return m.layerDuration }

// ContentDuration returns the content-side length of the mapping.
func (m TimeMapper) ContentDuration() Time { return m.contentDuration }

// Degenerate reports whether either timeline has zero length.
func (m TimeMapper) Degenerate() bool {
	return m.layerDuration == 0 || m.contentDuration == 0
}

// LayerTimeToContent maps a layer time onto the content timeline. Inputs
// outside the layer timeline are clamped to its nearest boundary.
func (m TimeMapper) LayerTimeToContent(layerTime Time) Time {
	if m.Degenerate() {
		return 0
	}
	t := clamp(layerTime, m.layerDuration)
	if m.layerDuration == m.contentDuration {
		return t
	}
	return scale(t, m.contentDuration, m.layerDuration)
}

// ContentTimeToLayer is the inverse of LayerTimeToContent. The round trip
// layer -> content -> layer is exact when the content duration C is at least
// the layer duration D. When C < D it is off by at most ceil(D/(2C)) µs.
func (m TimeMapper) ContentTimeToLayer(contentTime Time) Time {
	if m.Degenerate() {
		return 0
	}
	c := clamp(contentTime, m.contentDuration)
	if m.layerDuration == m.contentDuration {
		return c
	}
	return scale(c, m.layerDuration, m.contentDuration)
}

func clamp(t, upper Time) Time {
	if t < 0 {
		return 0
	}
	if t > upper {
		return upper
	}
	return t
}

// scale returns round(t*num/den) for 0 <= t <= den, using a 128-bit product.
// The quotient never exceeds num, so the division cannot overflow.
func scale(t, num, den Time) Time {
	hi, lo := bits.Mul64(uint64(t), uint64(num))
	q, r := bits.Div64(hi, lo, uint64(den))
	if r >= uint64(den)-r {
		q++
	}
	return Time(q)
}
