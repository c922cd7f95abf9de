package imagelayer

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Time is a point or length on a timeline, in microseconds.
type Time int64

// FromDuration converts d to Time, truncating sub-microsecond precision.
func FromDuration(d time.Duration) Time {
	return Time(d / time.Microsecond)
}

// Duration converts t to a time.Duration.
func (t Time) Duration() time.Duration {
	return time.Duration(t) * time.Microsecond
}

// NoEditableIndex marks a layer that shares its content with no other layer.
const NoEditableIndex = -1

// VideoRange is a window on a content's native timeline that is a valid
// replacement source.
type VideoRange struct {
	Start    Time `json:"start" yaml:"start"`
	Duration Time `json:"duration" yaml:"duration"`
}

// End returns the first time after the range.
func (r VideoRange) End() Time {
	return r.Start + r.Duration
}

// Content is a replacement image or video clip. Content is immutable; layers
// hold it by reference and never own it.
type Content struct {
	id             uuid.UUID
	nativeDuration Time
	ranges         []VideoRange
	data           []byte
	format         ImageFormat
}

// ContentOption configures a Content at construction.
type ContentOption func(*Content)

// WithContentID sets the identity of the content instead of generating one.
func WithContentID(id uuid.UUID) ContentOption {
	return func(c *Content) {
		c.id = id
	}
}

// WithContentBytes attaches an opaque payload to the content.
func WithContentBytes(data []byte) ContentOption {
	return func(c *Content) {
		c.data = append([]byte(nil), data...)
		c.format = DetectImageFormat(data)
	}
}

// NewContent creates a content with the given native duration and video
// ranges. Ranges are copied and stored in ascending start order. Every range
// must lie within [0, nativeDuration].
func NewContent(nativeDuration Time, ranges []VideoRange, opts ...ContentOption) (*Content, error) {
	if nativeDuration < 0 {
		return nil, ErrNegativeDuration
	}
	sorted, err := sortedRanges(nativeDuration, ranges)
	if err != nil {
		return nil, err
	}

	c := &Content{
		id:             uuid.New(),
		nativeDuration: nativeDuration,
		ranges:         sorted,
		format:         UnknownFormat,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ID returns the content identity.
func (c *Content) ID() uuid.UUID { return c.id }

// NativeDuration returns the intrinsic length of the content's timeline.
func (c *Content) NativeDuration() Time { return c.nativeDuration }

// VideoRanges returns a copy of the declared ranges, ascending by start.
func (c *Content) VideoRanges() []VideoRange {
	return append([]VideoRange{}, c.ranges...)
}

// Bytes returns a copy of the payload, or nil when the content carries none.
func (c *Content) Bytes() []byte {
	if c.data == nil {
		return nil
	}
	return append([]byte(nil), c.data...)
}

// Format returns the detected payload container.
func (c *Content) Format() ImageFormat { return c.format }

func sortedRanges(nativeDuration Time, ranges []VideoRange) ([]VideoRange, error) {
	out := make([]VideoRange, 0, len(ranges))
	for _, r := range ranges {
		// Compared without computing Start+Duration so huge values cannot wrap.
		if r.Start < 0 || r.Duration < 0 || r.Start > nativeDuration || r.Duration > nativeDuration-r.Start {
			return nil, &RangeError{Range: r, Err: ErrInvalidVideoRange}
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].Duration < out[j].Duration
	})
	return out, nil
}
