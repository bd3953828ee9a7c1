package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/disgoorg/disgolink/v3/disgolink"
	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLink records node calls so playback policy can be tested without a
// running audio node.
type fakeLink struct {
	played    []lavalink.Track
	stops     int
	paused    []bool
	volumes   []int
	positions []time.Duration
	pos       time.Duration
	err       error
}

func (f *fakeLink) PlayTrack(_ context.Context, track lavalink.Track) error {
	if f.err != nil {
		return f.err
	}
	f.played = append(f.played, track)
	return nil
}

func (f *fakeLink) StopTrack(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.stops++
	return nil
}

func (f *fakeLink) SetPaused(_ context.Context, paused bool) error {
	if f.err != nil {
		return f.err
	}
	f.paused = append(f.paused, paused)
	return nil
}

func (f *fakeLink) SetVolume(_ context.Context, volume int) error {
	if f.err != nil {
		return f.err
	}
	f.volumes = append(f.volumes, volume)
	return nil
}

func (f *fakeLink) SetPosition(_ context.Context, position time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.positions = append(f.positions, position)
	return nil
}

func (f *fakeLink) Position() time.Duration {
	return f.pos
}

func newTestPlayer() (*Player, *fakeLink) {
	link := &fakeLink{}
	player := NewPlayer(snowflake.ID(1), link)
	player.markConnected()
	return player, link
}

func requireFailure(t *testing.T, err error, message string) {
	t.Helper()
	failure, ok := IsFailure(err)
	require.True(t, ok, "expected a user-facing failure, got %v", err)
	assert.Equal(t, message, failure.Message)
}

func TestPlayerPlayAt(t *testing.T) {
	player, link := newTestPlayer()
	player.AddTracks(testTrack("a"), testTrack("b"), testTrack("c"))

	track, err := player.PlayAt(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "b", track.Info.Title)
	assert.Equal(t, PlayerStatePlaying, player.State())
	require.Len(t, link.played, 1)
	assert.Equal(t, "b", link.played[0].Info.Title)
}

func TestPlayerPlayAtEmpty(t *testing.T) {
	player, _ := newTestPlayer()

	_, err := player.PlayAt(context.Background(), 0)
	requireFailure(t, err, MsgMusicPlaylistEmpty)
	assert.Equal(t, PlayerStateIdle, player.State())
}

func TestPlayerTrackEndAdvances(t *testing.T) {
	player, link := newTestPlayer()
	player.AddTracks(testTrack("a"), testTrack("b"))
	_, err := player.PlayAt(context.Background(), 0)
	require.NoError(t, err)

	track, ok := player.handleTrackEnd(context.Background(), lavalink.TrackEndReasonFinished)
	require.True(t, ok)
	assert.Equal(t, "b", track.Info.Title)
	require.Len(t, link.played, 2)
	assert.Equal(t, "b", link.played[1].Info.Title)
}

func TestPlayerTrackEndStoppedDoesNotAdvance(t *testing.T) {
	player, link := newTestPlayer()
	player.AddTracks(testTrack("a"), testTrack("b"))
	_, err := player.PlayAt(context.Background(), 0)
	require.NoError(t, err)

	for _, reason := range []lavalink.TrackEndReason{lavalink.TrackEndReasonStopped, lavalink.TrackEndReasonReplaced} {
		_, ok := player.handleTrackEnd(context.Background(), reason)
		assert.False(t, ok, "reason %s must not advance", reason)
	}
	require.Len(t, link.played, 1)

	current, ok := player.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "a", current.Info.Title)
}

func TestPlayerExhaustionGoesIdle(t *testing.T) {
	player, link := newTestPlayer()
	player.AddTracks(testTrack("a"))
	_, err := player.PlayAt(context.Background(), 0)
	require.NoError(t, err)

	_, ok := player.handleTrackEnd(context.Background(), lavalink.TrackEndReasonFinished)
	assert.False(t, ok)
	assert.Equal(t, PlayerStateIdle, player.State())
	assert.False(t, player.HasNext())
	_, ok = player.CurrentTrack()
	assert.False(t, ok)
	require.Len(t, link.played, 1)
}

func TestPlayerTrackEndRepeatTrack(t *testing.T) {
	player, link := newTestPlayer()
	player.AddTracks(testTrack("a"), testTrack("b"))
	player.SetRepeatMode(RepeatTrack)
	_, err := player.PlayAt(context.Background(), 0)
	require.NoError(t, err)

	track, ok := player.handleTrackEnd(context.Background(), lavalink.TrackEndReasonFinished)
	require.True(t, ok)
	assert.Equal(t, "a", track.Info.Title)
	require.Len(t, link.played, 2)
}

func TestPlayerTrackStuckAdvances(t *testing.T) {
	player, link := newTestPlayer()
	player.AddTracks(testTrack("a"), testTrack("b"))
	_, err := player.PlayAt(context.Background(), 0)
	require.NoError(t, err)

	track, ok := player.handleTrackStuck(context.Background(), 10*time.Second)
	require.True(t, ok)
	assert.Equal(t, "b", track.Info.Title)
	require.Len(t, link.played, 2)
}

func TestPlayerPauseResume(t *testing.T) {
	player, link := newTestPlayer()
	player.AddTracks(testTrack("a"))
	_, err := player.PlayAt(context.Background(), 0)
	require.NoError(t, err)

	track, err := player.Pause(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", track.Info.Title)
	assert.Equal(t, PlayerStatePaused, player.State())

	_, err = player.Pause(context.Background())
	requireFailure(t, err, MsgMusicAlreadyPaused)

	_, err = player.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PlayerStatePlaying, player.State())

	_, err = player.Resume(context.Background())
	requireFailure(t, err, MsgMusicNotPaused)

	assert.Equal(t, []bool{true, false}, link.paused)
}

func TestPlayerPauseWhenIdle(t *testing.T) {
	player, _ := newTestPlayer()
	player.AddTracks(testTrack("a"))

	_, err := player.Pause(context.Background())
	requireFailure(t, err, MsgMusicNotPlaying)
}

func TestPlayerStopKeepsCursor(t *testing.T) {
	player, link := newTestPlayer()
	player.AddTracks(testTrack("a"), testTrack("b"))
	_, err := player.PlayAt(context.Background(), 0)
	require.NoError(t, err)

	track, err := player.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", track.Info.Title)
	assert.Equal(t, PlayerStateIdle, player.State())
	assert.Equal(t, 1, link.stops)

	current, ok := player.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "a", current.Info.Title)

	_, err = player.Stop(context.Background())
	requireFailure(t, err, MsgMusicNotPlaying)
}

func TestPlayerSetVolumeClamps(t *testing.T) {
	player, link := newTestPlayer()

	volume, err := player.SetVolume(context.Background(), 999)
	require.NoError(t, err)
	assert.Equal(t, MaxVolume, volume)

	volume, err = player.SetVolume(context.Background(), -5)
	require.NoError(t, err)
	assert.Equal(t, 0, volume)
	assert.Equal(t, 0, player.Volume())

	assert.Equal(t, []int{MaxVolume, 0}, link.volumes)
}

func TestPlayerSeek(t *testing.T) {
	player, link := newTestPlayer()
	player.AddTracks(testTrack("a"))
	_, err := player.PlayAt(context.Background(), 0)
	require.NoError(t, err)

	track, err := player.Seek(context.Background(), 90*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a", track.Info.Title)
	assert.Equal(t, []time.Duration{90 * time.Second}, link.positions)
}

func TestPlayerSeekNotSeekable(t *testing.T) {
	player, _ := newTestPlayer()
	stream := testTrack("radio")
	stream.Info.IsStream = true
	player.AddTracks(stream)
	_, err := player.PlayAt(context.Background(), 0)
	require.NoError(t, err)

	_, err = player.Seek(context.Background(), time.Second)
	requireFailure(t, err, MsgMusicSeekNotSeekable)
}

func TestPlayerSeekWhenIdle(t *testing.T) {
	player, _ := newTestPlayer()
	player.AddTracks(testTrack("a"))

	_, err := player.Seek(context.Background(), time.Second)
	requireFailure(t, err, MsgMusicNotPlaying)
}

// stubNodePlayer satisfies the node player interface for session tests; only
// Update is ever reached.
type stubNodePlayer struct {
	disgolink.Player
}

func (stubNodePlayer) Update(context.Context, ...lavalink.PlayerUpdateOpt) error { return nil }

type stubNodeClient struct {
	disgolink.Client
}

func (stubNodeClient) Player(snowflake.ID) disgolink.Player         { return stubNodePlayer{} }
func (stubNodeClient) ExistingPlayer(snowflake.ID) disgolink.Player { return nil }

func newTestMusicSystem(sendErr error) *MusicSystem {
	return &MusicSystem{
		node:     stubNodeClient{},
		sessions: map[snowflake.ID]*Player{},
		sendVoiceUpdate: func(context.Context, snowflake.ID, *snowflake.ID) error {
			return sendErr
		},
		loadSettings: func(_ context.Context, guildID snowflake.ID) (*MusicSettings, error) {
			return &MusicSettings{GuildID: guildID, Volume: DefaultVolume, Repeat: RepeatOff}, nil
		},
	}
}

func TestMusicSystemConnectRegistersPlayer(t *testing.T) {
	ms := newTestMusicSystem(nil)

	player, err := ms.Connect(context.Background(), snowflake.ID(1), snowflake.ID(2), snowflake.ID(3))
	require.NoError(t, err)
	require.NotNil(t, player)
	assert.Equal(t, 1, ms.PlayerCount())
	assert.Same(t, player, ms.GetPlayer(snowflake.ID(1)))
	assert.Equal(t, snowflake.ID(2), player.VoiceChannelID())
}

func TestMusicSystemConnectFailureDropsNewPlayer(t *testing.T) {
	ms := newTestMusicSystem(errors.New("voice state update failed"))

	_, err := ms.Connect(context.Background(), snowflake.ID(1), snowflake.ID(2), snowflake.ID(3))
	require.Error(t, err)
	assert.Nil(t, ms.GetPlayer(snowflake.ID(1)))
	assert.Equal(t, 0, ms.PlayerCount())
}

func TestMusicSystemConnectFailureKeepsExistingPlayer(t *testing.T) {
	ms := newTestMusicSystem(nil)
	player, err := ms.Connect(context.Background(), snowflake.ID(1), snowflake.ID(2), snowflake.ID(3))
	require.NoError(t, err)

	// A failed move must not destroy the established session.
	ms.sendVoiceUpdate = func(context.Context, snowflake.ID, *snowflake.ID) error {
		return errors.New("voice state update failed")
	}
	_, err = ms.Connect(context.Background(), snowflake.ID(1), snowflake.ID(4), snowflake.ID(3))
	require.Error(t, err)
	assert.Same(t, player, ms.GetPlayer(snowflake.ID(1)))
}
