package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/disgoorg/disgolink/v3/lavalink"
)

const (
	searchPrefix     = "ytsearch:"
	maxSearchResults = 5
	searchTitleWidth = 80
)

// playlistMarkers are the URL fragments that mark a link as a playlist
// rather than a single video.
var playlistMarkers = []string{"playlist?", "&list=", "?list"}

// TrackResolver turns a user-supplied source string into tracks via the
// audio node. Interactive decisions (playlist expansion, search choice) run
// through the supplied Prompt; a failed or cancelled resolution returns an
// error and never partial results.
type TrackResolver struct {
	loader TrackLoader
}

// MusicResolver is the node-backed resolver used by the music commands. It
// is wired once the node client exists.
var MusicResolver *TrackResolver

func NewTrackResolver(loader TrackLoader) *TrackResolver {
	return &TrackResolver{loader: loader}
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func isPlaylistURL(source string) bool {
	for _, marker := range playlistMarkers {
		if strings.Contains(source, marker) {
			return true
		}
	}
	return false
}

// Resolve classifies the source and resolves it. An empty source resolves to
// no tracks and no error, which callers treat as "resume the cursor".
func (r *TrackResolver) Resolve(ctx context.Context, source string, prompt Prompt) ([]lavalink.Track, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}
	if isURL(source) {
		if isPlaylistURL(source) {
			return r.resolvePlaylist(ctx, source, prompt)
		}
		return r.resolveURL(ctx, source)
	}
	return r.resolveSearch(ctx, source, prompt)
}

// resolvePlaylist loads a playlist link. A playlist with more than one entry
// requires the user to pick between adding all entries or only the first.
func (r *TrackResolver) resolvePlaylist(ctx context.Context, source string, prompt Prompt) ([]lavalink.Track, error) {
	result, err := r.loader.LoadTracks(ctx, source)
	if err != nil {
		return nil, err
	}

	switch data := result.Data.(type) {
	case lavalink.Playlist:
		tracks := data.Tracks
		if len(tracks) == 0 {
			return nil, &Failure{Message: MsgMusicURLNoResults}
		}
		if len(tracks) == 1 {
			return tracks[:1], nil
		}

		choice, err := prompt.Choose(ctx,
			fmt.Sprintf(MsgMusicPlaylistPromptContained, len(tracks)),
			[]PromptOption{
				{Label: MsgMusicChoiceAddAll, Value: "all"},
				{Label: MsgMusicChoiceAddFirst, Value: "first"},
			})
		if err != nil {
			return nil, err
		}
		if choice == "all" {
			return tracks, nil
		}
		return tracks[:1], nil
	case lavalink.Track:
		return []lavalink.Track{data}, nil
	case lavalink.Search:
		if len(data) == 0 {
			return nil, &Failure{Message: MsgMusicURLNoResults}
		}
		return []lavalink.Track(data[:1]), nil
	default:
		return nil, &Failure{Message: MsgMusicURLNoResults}
	}
}

// resolveURL loads a plain link and yields exactly one track.
func (r *TrackResolver) resolveURL(ctx context.Context, source string) ([]lavalink.Track, error) {
	result, err := r.loader.LoadTracks(ctx, source)
	if err != nil {
		return nil, err
	}

	switch data := result.Data.(type) {
	case lavalink.Track:
		return []lavalink.Track{data}, nil
	case lavalink.Playlist:
		if len(data.Tracks) == 0 {
			return nil, &Failure{Message: MsgMusicURLNoResults}
		}
		return data.Tracks[:1], nil
	case lavalink.Search:
		if len(data) == 0 {
			return nil, &Failure{Message: MsgMusicURLNoResults}
		}
		return []lavalink.Track(data[:1]), nil
	default:
		return nil, &Failure{Message: MsgMusicURLNoResults}
	}
}

// resolveSearch runs a text search on the node and lets the user pick one of
// the top results.
func (r *TrackResolver) resolveSearch(ctx context.Context, source string, prompt Prompt) ([]lavalink.Track, error) {
	result, err := r.loader.LoadTracks(ctx, searchPrefix+source)
	if err != nil {
		return nil, err
	}

	var candidates []lavalink.Track
	switch data := result.Data.(type) {
	case lavalink.Search:
		candidates = data
	case lavalink.Track:
		return []lavalink.Track{data}, nil
	case lavalink.Playlist:
		candidates = data.Tracks
	default:
		return nil, &Failure{Message: MsgMusicSearchNoResults}
	}

	if len(candidates) == 0 {
		return nil, &Failure{Message: MsgMusicSearchNoResults}
	}
	if len(candidates) > maxSearchResults {
		candidates = candidates[:maxSearchResults]
	}

	var question strings.Builder
	question.WriteString(MsgMusicSearchPrompt)
	question.WriteString("\n")
	options := make([]PromptOption, 0, len(candidates))
	for i, track := range candidates {
		title := Truncate(track.Info.Title, searchTitleWidth)
		if track.Info.URI != nil {
			fmt.Fprintf(&question, "\n`#%d` [%s](%s) (%s)", i+1, title, *track.Info.URI, FormatTrackDuration(track.Info.Length))
		} else {
			fmt.Fprintf(&question, "\n`#%d` %s (%s)", i+1, title, FormatTrackDuration(track.Info.Length))
		}
		options = append(options, PromptOption{
			Label:       title,
			Value:       strconv.Itoa(i),
			Description: Truncate(track.Info.Author, searchTitleWidth),
		})
	}

	choice, err := prompt.Choose(ctx, question.String(), options)
	if err != nil {
		return nil, err
	}
	index, err := strconv.Atoi(choice)
	if err != nil || index < 0 || index >= len(candidates) {
		return nil, &Failure{Message: MsgMusicSearchNoResults}
	}
	return []lavalink.Track{candidates[index]}, nil
}
