package main

import (
	"math/rand"

	"github.com/disgoorg/disgolink/v3/lavalink"
)

// ===========================
// Repeat modes
// ===========================

type Repeat string

const (
	RepeatOff   Repeat = "off"
	RepeatAll   Repeat = "all"
	RepeatTrack Repeat = "track"
)

func ParseRepeat(s string) Repeat {
	switch s {
	case string(RepeatAll):
		return RepeatAll
	case string(RepeatTrack):
		return RepeatTrack
	default:
		return RepeatOff
	}
}

// ===========================
// Playlist
// ===========================

// Playlist is an ordered list of tracks with a cursor. The cursor is -1 while
// the playlist is empty and stays within [0, len) otherwise, except after the
// final advance with repeat off, where it lands one past the end so that
// Current reports nothing and HasNext stays false until the cursor moves.
type Playlist struct {
	tracks   []lavalink.Track
	position int
	repeat   Repeat
}

func NewPlaylist() *Playlist {
	return &Playlist{
		tracks:   []lavalink.Track{},
		position: -1,
		repeat:   RepeatOff,
	}
}

func (p *Playlist) Length() int {
	return len(p.tracks)
}

func (p *Playlist) IsEmpty() bool {
	return len(p.tracks) == 0
}

func (p *Playlist) Position() int {
	return p.position
}

func (p *Playlist) Repeat() Repeat {
	return p.repeat
}

func (p *Playlist) SetRepeat(mode Repeat) {
	p.repeat = mode
}

// Current returns the track under the cursor, or false when the cursor is out
// of range (empty playlist or exhausted with repeat off).
func (p *Playlist) Current() (lavalink.Track, bool) {
	if p.position < 0 || p.position >= len(p.tracks) {
		return lavalink.Track{}, false
	}
	return p.tracks[p.position], true
}

// Tracks returns a snapshot copy of the playlist contents.
func (p *Playlist) Tracks() []lavalink.Track {
	out := make([]lavalink.Track, len(p.tracks))
	copy(out, p.tracks)
	return out
}

// Add appends tracks and returns the 0-based index of the first one added.
// Adding to an empty playlist puts the cursor on the first new track.
func (p *Playlist) Add(tracks ...lavalink.Track) int {
	first := len(p.tracks)
	p.tracks = append(p.tracks, tracks...)
	if p.position == -1 && len(p.tracks) > 0 {
		p.position = 0
	}
	return first
}

// Remove deletes the track at index. When the removed index is at or before
// the cursor the cursor shifts left so the same track stays current, clamped
// at 0. Removing the last remaining track resets the cursor to -1.
func (p *Playlist) Remove(index int) (lavalink.Track, bool) {
	if index < 0 || index >= len(p.tracks) {
		return lavalink.Track{}, false
	}
	track := p.tracks[index]
	p.tracks = append(p.tracks[:index], p.tracks[index+1:]...)
	if index <= p.position {
		p.position--
	}
	if len(p.tracks) == 0 {
		p.position = -1
	} else if p.position < 0 {
		p.position = 0
	}
	return track, true
}

func (p *Playlist) Clear() int {
	count := len(p.tracks)
	p.tracks = p.tracks[:0]
	p.position = -1
	return count
}

// Shuffle reorders the tracks in place and restarts the cursor at the front,
// so playback after a shuffle walks the new order from the top.
func (p *Playlist) Shuffle() {
	rand.Shuffle(len(p.tracks), func(i, j int) {
		p.tracks[i], p.tracks[j] = p.tracks[j], p.tracks[i]
	})
	if len(p.tracks) > 0 {
		p.position = 0
	}
}

// SetPosition moves the cursor to index, clamped into [0, len), and returns
// the track now under it. Returns false when the playlist is empty.
func (p *Playlist) SetPosition(index int) (lavalink.Track, bool) {
	if len(p.tracks) == 0 {
		return lavalink.Track{}, false
	}
	p.position = min(max(0, index), len(p.tracks)-1)
	return p.tracks[p.position], true
}

// HasNext reports whether Advance would yield a track. Any repeat mode other
// than off makes a non-empty playlist endless.
func (p *Playlist) HasNext() bool {
	if len(p.tracks) == 0 {
		return false
	}
	if p.repeat != RepeatOff {
		return true
	}
	return p.position+1 < len(p.tracks)
}

// Advance moves the cursor by one step according to the repeat mode and
// returns the new current track. With repeat off the cursor may step past the
// end, exhausting the playlist.
func (p *Playlist) Advance() (lavalink.Track, bool) {
	if len(p.tracks) == 0 {
		return lavalink.Track{}, false
	}
	switch p.repeat {
	case RepeatTrack:
		// cursor stays put
	case RepeatAll:
		p.position = (p.position + 1) % len(p.tracks)
	default:
		p.position++
	}
	return p.Current()
}
