package srmeta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestEncode(t *testing.T) {
	due := time.Date(2024, 3, 1, 15, 4, 0, 0, time.UTC)

	testCases := []struct {
		name       string
		difficulty *float64
		stability  *float64
		expected   string
	}{
		{"legacy", nil, nil, "<!--SR:!2024-03-01,12,250-->"},
		{"extended", ptr(5.1), ptr(14.199), "<!--SR:!2024-03-01,12,250,5.10,14.20-->"},
		{"difficulty only falls back to legacy", ptr(5), nil, "<!--SR:!2024-03-01,12,250-->"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Encode(due, 12, 250, tc.difficulty, tc.stability))
		})
	}
}

func TestDecode(t *testing.T) {
	t.Run("extended is preferred", func(t *testing.T) {
		meta, ok := Decode("Paris <!--SR:!2024-03-01,12,250,5.10,14.20-->")
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), meta.Due)
		assert.Equal(t, 12, meta.Interval)
		assert.Equal(t, 250, meta.Ease)
		require.True(t, meta.Extended())
		assert.InDelta(t, 5.10, *meta.Difficulty, 1e-9)
		assert.InDelta(t, 14.20, *meta.Stability, 1e-9)
	})

	t.Run("legacy", func(t *testing.T) {
		meta, ok := Decode("<!--SR:!2023-12-31,3,270-->")
		require.True(t, ok)
		assert.False(t, meta.Extended())
		assert.Equal(t, 3, meta.Interval)
		assert.Equal(t, 270, meta.Ease)
	})

	for _, text := range []string{
		"",
		"no token here",
		"<!--SR:!2024-13-45,1,250-->",
		"<!--SR:!yesterday,1,250-->",
		"<!--SR:!2024-03-01,x,250-->",
		"<!--SR:2024-03-01,1,250-->",
	} {
		t.Run("rejects "+text, func(t *testing.T) {
			_, ok := Decode(text)
			assert.False(t, ok)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	due := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name string
		meta Meta
	}{
		{"legacy", Meta{Due: due, Interval: 41, Ease: 310}},
		{"extended", Meta{Due: due, Interval: 1, Ease: 130, Difficulty: ptr(9.999), Stability: ptr(0.104)}},
		{"large values", Meta{Due: due, Interval: 36500, Ease: 0, Difficulty: ptr(1), Stability: ptr(123456.789)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			first := EncodeMeta(tc.meta)
			decoded, ok := Decode(first)
			require.True(t, ok)
			assert.Equal(t, tc.meta.Interval, decoded.Interval)
			assert.Equal(t, tc.meta.Ease, decoded.Ease)
			assert.True(t, tc.meta.Due.Equal(decoded.Due))
			if tc.meta.Extended() {
				assert.InDelta(t, *tc.meta.Difficulty, *decoded.Difficulty, 0.005)
				assert.InDelta(t, *tc.meta.Stability, *decoded.Stability, 0.005)
			}
			assert.Equal(t, first, EncodeMeta(decoded))
		})
	}
}

func TestStrip(t *testing.T) {
	assert.Equal(t, "Paris", Strip("Paris <!--SR:!2024-03-01,12,250-->"))
	assert.Equal(t, "untouched", Strip("untouched"))
}
