package main

import (
	"testing"

	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTrack(title string) lavalink.Track {
	return lavalink.Track{
		Encoded: title,
		Info: lavalink.TrackInfo{
			Title: title,
		},
	}
}

func TestPlaylistStartsEmpty(t *testing.T) {
	p := NewPlaylist()

	assert.True(t, p.IsEmpty())
	assert.Equal(t, -1, p.Position())
	assert.False(t, p.HasNext())
	_, ok := p.Current()
	assert.False(t, ok)
}

func TestPlaylistAdd(t *testing.T) {
	p := NewPlaylist()

	assert.Equal(t, 0, p.Add(testTrack("a")))
	assert.Equal(t, 0, p.Position())

	current, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "a", current.Info.Title)

	// Appending never moves the cursor off the current track.
	assert.Equal(t, 1, p.Add(testTrack("b"), testTrack("c")))
	current, ok = p.Current()
	require.True(t, ok)
	assert.Equal(t, "a", current.Info.Title)
	assert.Equal(t, 3, p.Length())
}

func TestPlaylistRemoveShiftsCursor(t *testing.T) {
	p := NewPlaylist()
	p.Add(testTrack("a"), testTrack("b"), testTrack("c"))
	_, ok := p.SetPosition(2)
	require.True(t, ok)

	removed, ok := p.Remove(0)
	require.True(t, ok)
	assert.Equal(t, "a", removed.Info.Title)
	assert.Equal(t, 1, p.Position())
	current, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "c", current.Info.Title)

	// Removing the current track steps back to its predecessor.
	removed, ok = p.Remove(1)
	require.True(t, ok)
	assert.Equal(t, "c", removed.Info.Title)
	current, ok = p.Current()
	require.True(t, ok)
	assert.Equal(t, "b", current.Info.Title)
}

func TestPlaylistRemoveAfterCursor(t *testing.T) {
	p := NewPlaylist()
	p.Add(testTrack("a"), testTrack("b"))

	_, ok := p.Remove(1)
	require.True(t, ok)
	assert.Equal(t, 0, p.Position())
	current, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "a", current.Info.Title)
}

func TestPlaylistRemoveLastTrack(t *testing.T) {
	p := NewPlaylist()
	p.Add(testTrack("a"))

	_, ok := p.Remove(0)
	require.True(t, ok)
	assert.True(t, p.IsEmpty())
	assert.Equal(t, -1, p.Position())
	_, ok = p.Current()
	assert.False(t, ok)
}

func TestPlaylistRemoveOutOfRange(t *testing.T) {
	p := NewPlaylist()
	p.Add(testTrack("a"))

	_, ok := p.Remove(-1)
	assert.False(t, ok)
	_, ok = p.Remove(1)
	assert.False(t, ok)
	assert.Equal(t, 1, p.Length())
}

func TestPlaylistClear(t *testing.T) {
	p := NewPlaylist()
	p.Add(testTrack("a"), testTrack("b"))

	assert.Equal(t, 2, p.Clear())
	assert.True(t, p.IsEmpty())
	assert.Equal(t, -1, p.Position())
	assert.Equal(t, 0, p.Clear())
}

func TestPlaylistSetPositionClamps(t *testing.T) {
	p := NewPlaylist()
	p.Add(testTrack("a"), testTrack("b"), testTrack("c"))

	track, ok := p.SetPosition(99)
	require.True(t, ok)
	assert.Equal(t, "c", track.Info.Title)

	track, ok = p.SetPosition(-5)
	require.True(t, ok)
	assert.Equal(t, "a", track.Info.Title)

	_, ok = NewPlaylist().SetPosition(0)
	assert.False(t, ok)
}

func TestPlaylistAdvanceRepeatOff(t *testing.T) {
	p := NewPlaylist()
	p.Add(testTrack("a"), testTrack("b"))

	assert.True(t, p.HasNext())
	track, ok := p.Advance()
	require.True(t, ok)
	assert.Equal(t, "b", track.Info.Title)
	assert.False(t, p.HasNext())

	// The final advance exhausts the playlist.
	_, ok = p.Advance()
	assert.False(t, ok)
	_, ok = p.Current()
	assert.False(t, ok)
	assert.False(t, p.HasNext())
}

func TestPlaylistAdvanceRepeatAll(t *testing.T) {
	p := NewPlaylist()
	p.Add(testTrack("a"), testTrack("b"))
	p.SetRepeat(RepeatAll)

	track, ok := p.Advance()
	require.True(t, ok)
	assert.Equal(t, "b", track.Info.Title)

	track, ok = p.Advance()
	require.True(t, ok)
	assert.Equal(t, "a", track.Info.Title)
	assert.True(t, p.HasNext())
}

func TestPlaylistAdvanceRepeatTrack(t *testing.T) {
	p := NewPlaylist()
	p.Add(testTrack("a"), testTrack("b"))
	p.SetRepeat(RepeatTrack)

	for i := 0; i < 3; i++ {
		track, ok := p.Advance()
		require.True(t, ok)
		assert.Equal(t, "a", track.Info.Title)
	}
	assert.True(t, p.HasNext())
}

func TestPlaylistShuffleResetsCursor(t *testing.T) {
	p := NewPlaylist()
	p.Add(testTrack("a"), testTrack("b"), testTrack("c"))
	p.SetPosition(2)

	p.Shuffle()
	assert.Equal(t, 0, p.Position())
	assert.Equal(t, 3, p.Length())

	NewPlaylist().Shuffle() // no-op on empty
}

func TestParseRepeat(t *testing.T) {
	assert.Equal(t, RepeatAll, ParseRepeat("all"))
	assert.Equal(t, RepeatTrack, ParseRepeat("track"))
	assert.Equal(t, RepeatOff, ParseRepeat("off"))
	assert.Equal(t, RepeatOff, ParseRepeat("bogus"))
}
