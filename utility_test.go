package main

import (
	"testing"
	"time"

	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrackPosition(t *testing.T) {
	cases := map[string]time.Duration{
		"90":      90 * time.Second,
		"02:15":   2*time.Minute + 15*time.Second,
		"1:02:15": time.Hour + 2*time.Minute + 15*time.Second,
		"1m30s":   time.Minute + 30*time.Second,
		"2h":      2 * time.Hour,
	}
	for input, want := range cases {
		got, err := ParseTrackPosition(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, got, "input %q", input)
	}

	for _, input := range []string{"", "abc", "-5", "1:2:3:4", "1:xx"} {
		_, err := ParseTrackPosition(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestFormatTrackDuration(t *testing.T) {
	assert.Equal(t, "00:05", FormatTrackDuration(lavalink.Duration(5000)))
	assert.Equal(t, "02:15", FormatTrackDuration(lavalink.Duration(135000)))
	assert.Equal(t, "1:02:15", FormatTrackDuration(lavalink.Duration(3735000)))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "exact", Truncate("exact", 5))
	assert.Equal(t, "lon...", Truncate("long string", 6))
	assert.Equal(t, "lo", Truncate("long", 2))
}
