package main

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgolink/v3/disgolink"
	"github.com/disgoorg/disgolink/v3/lavalink"
)

// ===========================
// Node interfaces
// ===========================

// TrackLoader resolves queries into tracks through the audio node.
type TrackLoader interface {
	LoadTracks(ctx context.Context, query string) (*lavalink.LoadResult, error)
}

// AudioLink drives playback of one guild's voice connection on the audio
// node. Players hold an AudioLink instead of the node client so playback
// logic stays testable.
type AudioLink interface {
	PlayTrack(ctx context.Context, track lavalink.Track) error
	StopTrack(ctx context.Context) error
	SetPaused(ctx context.Context, paused bool) error
	SetVolume(ctx context.Context, volume int) error
	SetPosition(ctx context.Context, position time.Duration) error
	Position() time.Duration
}

// ===========================
// Node wiring
// ===========================

var Lavalink disgolink.Client

func init() {
	OnClientReady(setupLavalink)
	RegisterVoiceServerUpdateHandler(onLavalinkVoiceServerUpdate)
	RegisterVoiceStateUpdateHandler(onLavalinkVoiceStateUpdate)
}

func setupLavalink(ctx context.Context, client *bot.Client) {
	if Lavalink != nil {
		return
	}
	cfg := GlobalConfig

	Lavalink = disgolink.New(client.ID(),
		disgolink.WithListenerFunc(onTrackStart),
		disgolink.WithListenerFunc(onTrackEnd),
		disgolink.WithListenerFunc(onTrackException),
		disgolink.WithListenerFunc(onTrackStuck),
	)
	InitMusicSystem(client, Lavalink)
	MusicResolver = NewTrackResolver(NewNodeLoader(Lavalink))

	LogLavalink(MsgLavalinkConnecting, cfg.LavalinkName, cfg.LavalinkAddress)
	safeGo(func() {
		nodeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		_, err := Lavalink.AddNode(nodeCtx, disgolink.NodeConfig{
			Name:     cfg.LavalinkName,
			Address:  cfg.LavalinkAddress,
			Password: cfg.LavalinkPassword,
			Secure:   cfg.LavalinkSecure,
		})
		if err != nil {
			LogError(MsgLavalinkConnectFail, cfg.LavalinkName, err)
			return
		}
		LogLavalink(MsgLavalinkConnected, cfg.LavalinkName)
	})
}

func CloseLavalink() {
	if Lavalink != nil {
		LogLavalink(MsgLavalinkClosing)
		Lavalink.Close()
	}
}

// --- Gateway voice forwarding ---

func onLavalinkVoiceServerUpdate(event *events.VoiceServerUpdate) {
	if Lavalink == nil || event.Endpoint == nil {
		return
	}
	Lavalink.OnVoiceServerUpdate(context.Background(), event.GuildID, event.Token, *event.Endpoint)
}

func onLavalinkVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	if Lavalink == nil || event.VoiceState.UserID != event.Client().ApplicationID {
		return
	}
	Lavalink.OnVoiceStateUpdate(context.Background(), event.VoiceState.GuildID, event.VoiceState.ChannelID, event.VoiceState.SessionID)
}

// --- Node event forwarding ---

func onTrackStart(p disgolink.Player, event lavalink.TrackStartEvent) {
	if MusicManager != nil {
		MusicManager.handleTrackStart(event.GuildID(), event.Track)
	}
}

func onTrackEnd(p disgolink.Player, event lavalink.TrackEndEvent) {
	if MusicManager != nil {
		MusicManager.handleTrackEnd(event.GuildID(), event.Reason)
	}
}

func onTrackException(p disgolink.Player, event lavalink.TrackExceptionEvent) {
	if MusicManager != nil {
		MusicManager.handleTrackException(event.GuildID(), event.Exception)
	}
}

func onTrackStuck(p disgolink.Player, event lavalink.TrackStuckEvent) {
	if MusicManager != nil {
		MusicManager.handleTrackStuck(event.GuildID(), time.Duration(event.Threshold.Milliseconds())*time.Millisecond)
	}
}

// ===========================
// Node-backed implementations
// ===========================

type nodeLink struct {
	player disgolink.Player
}

func NewNodeLink(player disgolink.Player) AudioLink {
	return &nodeLink{player: player}
}

func (l *nodeLink) PlayTrack(ctx context.Context, track lavalink.Track) error {
	return l.player.Update(ctx, lavalink.WithTrack(track))
}

func (l *nodeLink) StopTrack(ctx context.Context) error {
	return l.player.Update(ctx, lavalink.WithNullTrack())
}

func (l *nodeLink) SetPaused(ctx context.Context, paused bool) error {
	return l.player.Update(ctx, lavalink.WithPaused(paused))
}

func (l *nodeLink) SetVolume(ctx context.Context, volume int) error {
	return l.player.Update(ctx, lavalink.WithVolume(volume))
}

func (l *nodeLink) SetPosition(ctx context.Context, position time.Duration) error {
	return l.player.Update(ctx, lavalink.WithPosition(lavalink.Duration(position.Milliseconds())))
}

func (l *nodeLink) Position() time.Duration {
	return time.Duration(l.player.Position().Milliseconds()) * time.Millisecond
}

type nodeLoader struct {
	client disgolink.Client
}

func NewNodeLoader(client disgolink.Client) TrackLoader {
	return &nodeLoader{client: client}
}

func (l *nodeLoader) LoadTracks(ctx context.Context, query string) (*lavalink.LoadResult, error) {
	node := l.client.BestNode()
	if node == nil {
		return nil, &Failure{Message: MsgFailNodeUnavailable}
	}
	return node.LoadTracks(ctx, query)
}
