package imagelayer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/imagelayer/pkg/imagelayer"
)

func TestDurationPolicy_ContentDuration(t *testing.T) {
	overlapping := []imagelayer.VideoRange{
		{Start: 0, Duration: 1000},
		{Start: 500, Duration: 1000},
		{Start: 3000, Duration: 500},
	}

	tests := []struct {
		name   string
		policy imagelayer.DurationPolicy
		ranges []imagelayer.VideoRange
		want   imagelayer.Time
	}{
		{name: "extent without ranges", policy: imagelayer.ExtentPolicy, ranges: nil, want: 2000},
		{name: "coverage without ranges", policy: imagelayer.CoveragePolicy, ranges: nil, want: 2000},
		{name: "layer without ranges", policy: imagelayer.LayerPolicy, ranges: nil, want: 2000},
		{name: "extent reaches furthest end", policy: imagelayer.ExtentPolicy, ranges: overlapping, want: 3500},
		{name: "coverage counts overlaps once", policy: imagelayer.CoveragePolicy, ranges: overlapping, want: 2000},
		{name: "layer ignores ranges", policy: imagelayer.LayerPolicy, ranges: overlapping, want: 2000},
		{
			name:   "coverage of nested range",
			policy: imagelayer.CoveragePolicy,
			ranges: []imagelayer.VideoRange{{Start: 100, Duration: 50}, {Start: 0, Duration: 1000}},
			want:   1000,
		},
		{
			name:   "extent of unordered ranges",
			policy: imagelayer.ExtentPolicy,
			ranges: []imagelayer.VideoRange{{Start: 4000, Duration: 10}, {Start: 0, Duration: 100}},
			want:   4010,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.ContentDuration(2000, tt.ranges))
		})
	}
}

func TestParseDurationPolicy(t *testing.T) {
	p, err := imagelayer.ParseDurationPolicy(" Coverage ")
	require.NoError(t, err)
	assert.Equal(t, imagelayer.CoveragePolicy, p)

	_, err = imagelayer.ParseDurationPolicy("longest")
	assert.ErrorIs(t, err, imagelayer.ErrUnknownDurationPolicy)
}
