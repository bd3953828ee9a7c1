package main

import (
	"context"
	"testing"

	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	results map[string]*lavalink.LoadResult
	err     error
}

func (f *fakeLoader) LoadTracks(_ context.Context, query string) (*lavalink.LoadResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if result, ok := f.results[query]; ok {
		return result, nil
	}
	return &lavalink.LoadResult{LoadType: lavalink.LoadTypeEmpty}, nil
}

type fakePrompt struct {
	choice    string
	err       error
	questions []string
	options   [][]PromptOption
}

func (f *fakePrompt) Confirm(context.Context, string) error {
	return f.err
}

func (f *fakePrompt) Choose(_ context.Context, question string, options []PromptOption) (string, error) {
	f.questions = append(f.questions, question)
	f.options = append(f.options, options)
	if f.err != nil {
		return "", f.err
	}
	return f.choice, nil
}

func trackResult(track lavalink.Track) *lavalink.LoadResult {
	return &lavalink.LoadResult{LoadType: lavalink.LoadTypeTrack, Data: track}
}

func playlistResult(tracks ...lavalink.Track) *lavalink.LoadResult {
	return &lavalink.LoadResult{
		LoadType: lavalink.LoadTypePlaylist,
		Data: lavalink.Playlist{
			Info:   lavalink.PlaylistInfo{Name: "mix"},
			Tracks: tracks,
		},
	}
}

func searchResult(tracks ...lavalink.Track) *lavalink.LoadResult {
	return &lavalink.LoadResult{LoadType: lavalink.LoadTypeSearch, Data: lavalink.Search(tracks)}
}

func TestResolveEmptySource(t *testing.T) {
	r := NewTrackResolver(&fakeLoader{})

	tracks, err := r.Resolve(context.Background(), "   ", &fakePrompt{})
	require.NoError(t, err)
	assert.Nil(t, tracks)
}

func TestIsPlaylistURL(t *testing.T) {
	assert.True(t, isPlaylistURL("https://youtube.com/playlist?list=abc"))
	assert.True(t, isPlaylistURL("https://youtube.com/watch?v=x&list=abc"))
	assert.True(t, isPlaylistURL("https://music.example.com/browse?list=abc"))
	assert.False(t, isPlaylistURL("https://youtube.com/watch?v=x"))
}

func TestResolvePlainURL(t *testing.T) {
	url := "https://youtube.com/watch?v=x"
	r := NewTrackResolver(&fakeLoader{results: map[string]*lavalink.LoadResult{
		url: trackResult(testTrack("a")),
	}})

	tracks, err := r.Resolve(context.Background(), url, &fakePrompt{})
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "a", tracks[0].Info.Title)
}

func TestResolvePlainURLNoResults(t *testing.T) {
	r := NewTrackResolver(&fakeLoader{})

	_, err := r.Resolve(context.Background(), "https://youtube.com/watch?v=gone", &fakePrompt{})
	requireFailure(t, err, MsgMusicURLNoResults)
}

func TestResolvePlaylistAll(t *testing.T) {
	url := "https://youtube.com/playlist?list=abc"
	r := NewTrackResolver(&fakeLoader{results: map[string]*lavalink.LoadResult{
		url: playlistResult(testTrack("a"), testTrack("b"), testTrack("c")),
	}})
	prompt := &fakePrompt{choice: "all"}

	tracks, err := r.Resolve(context.Background(), url, prompt)
	require.NoError(t, err)
	assert.Len(t, tracks, 3)
	require.Len(t, prompt.questions, 1)
}

func TestResolvePlaylistFirst(t *testing.T) {
	url := "https://youtube.com/playlist?list=abc"
	r := NewTrackResolver(&fakeLoader{results: map[string]*lavalink.LoadResult{
		url: playlistResult(testTrack("a"), testTrack("b")),
	}})

	tracks, err := r.Resolve(context.Background(), url, &fakePrompt{choice: "first"})
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "a", tracks[0].Info.Title)
}

func TestResolvePlaylistSingleEntrySkipsPrompt(t *testing.T) {
	url := "https://youtube.com/playlist?list=solo"
	r := NewTrackResolver(&fakeLoader{results: map[string]*lavalink.LoadResult{
		url: playlistResult(testTrack("a")),
	}})
	prompt := &fakePrompt{err: &Failure{Message: MsgFailInteractionCancel}}

	tracks, err := r.Resolve(context.Background(), url, prompt)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Empty(t, prompt.questions)
}

func TestResolvePlaylistCancelPropagates(t *testing.T) {
	url := "https://youtube.com/playlist?list=abc"
	r := NewTrackResolver(&fakeLoader{results: map[string]*lavalink.LoadResult{
		url: playlistResult(testTrack("a"), testTrack("b")),
	}})

	tracks, err := r.Resolve(context.Background(), url, &fakePrompt{err: &Failure{Message: MsgFailInteractionCancel}})
	requireFailure(t, err, MsgFailInteractionCancel)
	assert.Nil(t, tracks)
}

func TestResolvePlaylistEmpty(t *testing.T) {
	url := "https://youtube.com/playlist?list=empty"
	r := NewTrackResolver(&fakeLoader{results: map[string]*lavalink.LoadResult{
		url: playlistResult(),
	}})

	_, err := r.Resolve(context.Background(), url, &fakePrompt{})
	requireFailure(t, err, MsgMusicURLNoResults)
}

func TestResolveSearchChoice(t *testing.T) {
	r := NewTrackResolver(&fakeLoader{results: map[string]*lavalink.LoadResult{
		searchPrefix + "hello": searchResult(testTrack("a"), testTrack("b"), testTrack("c")),
	}})
	prompt := &fakePrompt{choice: "1"}

	tracks, err := r.Resolve(context.Background(), "hello", prompt)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "b", tracks[0].Info.Title)
	require.Len(t, prompt.options, 1)
	assert.Len(t, prompt.options[0], 3)
}

func TestResolveSearchCapsResults(t *testing.T) {
	var results []lavalink.Track
	for _, title := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		results = append(results, testTrack(title))
	}
	r := NewTrackResolver(&fakeLoader{results: map[string]*lavalink.LoadResult{
		searchPrefix + "many": searchResult(results...),
	}})
	prompt := &fakePrompt{choice: "0"}

	_, err := r.Resolve(context.Background(), "many", prompt)
	require.NoError(t, err)
	require.Len(t, prompt.options, 1)
	assert.Len(t, prompt.options[0], maxSearchResults)
}

func TestResolveSearchNoResults(t *testing.T) {
	r := NewTrackResolver(&fakeLoader{results: map[string]*lavalink.LoadResult{
		searchPrefix + "nothing": searchResult(),
	}})

	_, err := r.Resolve(context.Background(), "nothing", &fakePrompt{})
	requireFailure(t, err, MsgMusicSearchNoResults)
}

func TestResolveSearchTimeoutPropagates(t *testing.T) {
	r := NewTrackResolver(&fakeLoader{results: map[string]*lavalink.LoadResult{
		searchPrefix + "hello": searchResult(testTrack("a"), testTrack("b")),
	}})

	tracks, err := r.Resolve(context.Background(), "hello", &fakePrompt{err: &Failure{Message: MsgFailInteractionTimeout}})
	requireFailure(t, err, MsgFailInteractionTimeout)
	assert.Nil(t, tracks)
}

func TestResolveSearchSingleDirectTrack(t *testing.T) {
	// Some sources resolve a search straight to one track; no prompt then.
	r := NewTrackResolver(&fakeLoader{results: map[string]*lavalink.LoadResult{
		searchPrefix + "exact": trackResult(testTrack("a")),
	}})
	prompt := &fakePrompt{err: &Failure{Message: MsgFailInteractionCancel}}

	tracks, err := r.Resolve(context.Background(), "exact", prompt)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Empty(t, prompt.questions)
}
