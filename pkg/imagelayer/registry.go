package imagelayer

// videoRangeRegistry answers range and duration queries for whichever content
// is active on a layer. It keeps no state of its own, so a replacement is
// visible to the very next query.
type videoRangeRegistry struct {
	policy DurationPolicy
}

func (r videoRangeRegistry) videoRanges(active *Content) []VideoRange {
	if active == nil {
		return []VideoRange{}
	}
	return active.VideoRanges()
}

func (r videoRangeRegistry) contentDuration(layerDuration Time, active *Content) Time {
	if active == nil {
		return layerDuration
	}
	if active.nativeDuration == 0 {
		return 0
	}
	return r.policy.ContentDuration(layerDuration, active.ranges)
}
