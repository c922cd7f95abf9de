package imagelayer

import (
	"fmt"
	"sort"
	"strings"
)

// DurationPolicy derives the content duration a layer needs from its own
// duration and the video ranges of the active content.
type DurationPolicy string

const (
	// ExtentPolicy requires content long enough to reach the end of the
	// furthest declared range.
	ExtentPolicy DurationPolicy = "extent"

	// CoveragePolicy requires the total length covered by the union of the
	// declared ranges.
	CoveragePolicy DurationPolicy = "coverage"

	// LayerPolicy always maps 1:1 onto the layer duration.
	LayerPolicy DurationPolicy = "layer"
)

// DefaultDurationPolicy is used when a layer is made without WithDurationPolicy.
const DefaultDurationPolicy = ExtentPolicy

// ParseDurationPolicy resolves a policy name, case-insensitively.
func ParseDurationPolicy(s string) (DurationPolicy, error) {
	p := DurationPolicy(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDurationPolicy, s)
	}
	return p, nil
}

// IsValid checks if the policy is one of the known policies
func (p DurationPolicy) IsValid() bool {
	switch p {
	case ExtentPolicy, CoveragePolicy, LayerPolicy:
		return true
	}
	return false
}

// ContentDuration returns the content-native length needed to back a layer
// of layerDuration. Without ranges every policy falls back to layerDuration.
func (p DurationPolicy) ContentDuration(layerDuration Time, ranges []VideoRange) Time {
	if len(ranges) == 0 {
		return layerDuration
	}
	switch p {
	case CoveragePolicy:
		return coverage(ranges)
	case LayerPolicy:
		return layerDuration
	default:
		return extent(ranges)
	}
}

func extent(ranges []VideoRange) Time {
	var end Time
	for _, r := range ranges {
		if e := r.End(); e > end {
			end = e
		}
	}
	return end
}

// coverage sums the union of the ranges; overlapping windows count once.
func coverage(ranges []VideoRange) Time {
	sorted := append([]VideoRange(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var total Time
	curStart, curEnd := sorted[0].Start, sorted[0].End()
	for _, r := range sorted[1:] {
		if r.Start > curEnd {
			total += curEnd - curStart
			curStart, curEnd = r.Start, r.End()
			continue
		}
		if e := r.End(); e > curEnd {
			curEnd = e
		}
	}
	return total + curEnd - curStart
}
