package main

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgolink/v3/disgolink"
	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"
)

const (
	DefaultVolume = 100
	MaxVolume     = 150
)

// ===========================
// Player states
// ===========================

type PlayerState int

const (
	PlayerStateDisconnected PlayerState = iota
	PlayerStateConnecting
	PlayerStateIdle
	PlayerStatePlaying
	PlayerStatePaused
)

func (s PlayerState) String() string {
	switch s {
	case PlayerStateConnecting:
		return "connecting"
	case PlayerStateIdle:
		return "idle"
	case PlayerStatePlaying:
		return "playing"
	case PlayerStatePaused:
		return "paused"
	default:
		return "disconnected"
	}
}

// ===========================
// Player
// ===========================

// Player binds one guild's playlist to its voice connection on the audio
// node. All mutations go through the player mutex so command handlers and
// node events serialize per guild.
type Player struct {
	mu             sync.Mutex
	guildID        snowflake.ID
	voiceChannelID snowflake.ID
	textChannelID  snowflake.ID
	playlist       *Playlist
	link           AudioLink
	state          PlayerState
	volume         int
}

func NewPlayer(guildID snowflake.ID, link AudioLink) *Player {
	return &Player{
		guildID:  guildID,
		playlist: NewPlaylist(),
		link:     link,
		state:    PlayerStateConnecting,
		volume:   DefaultVolume,
	}
}

func (p *Player) GuildID() snowflake.ID {
	return p.guildID
}

func (p *Player) VoiceChannelID() snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceChannelID
}

func (p *Player) TextChannelID() snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.textChannelID
}

func (p *Player) setChannels(voiceChannelID, textChannelID snowflake.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voiceChannelID = voiceChannelID
	if textChannelID != 0 {
		p.textChannelID = textChannelID
	}
}

func (p *Player) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) markConnected() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PlayerStateConnecting {
		p.state = PlayerStateIdle
	}
}

func (p *Player) markDisconnected() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = PlayerStateDisconnected
}

// --- Playlist access ---

func (p *Player) AddTracks(tracks ...lavalink.Track) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playlist.Add(tracks...)
}

func (p *Player) RemoveTrack(index int) (lavalink.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playlist.Remove(index)
}

func (p *Player) ClearTracks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playlist.Clear()
}

func (p *Player) ShuffleTracks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playlist.Shuffle()
	return p.playlist.Length()
}

func (p *Player) CurrentTrack() (lavalink.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playlist.Current()
}

func (p *Player) HasNext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playlist.HasNext()
}

func (p *Player) PlaylistLength() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playlist.Length()
}

func (p *Player) RepeatMode() Repeat {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playlist.Repeat()
}

func (p *Player) SetRepeatMode(mode Repeat) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playlist.SetRepeat(mode)
}

// Snapshot returns a copy of the playlist contents plus the cursor position
// for read-only rendering.
func (p *Player) Snapshot() ([]lavalink.Track, int, Repeat) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playlist.Tracks(), p.playlist.Position(), p.playlist.Repeat()
}

// --- Playback ---

// Play starts playback of the given track. The track must already be in the
// playlist with the cursor on it.
func (p *Player) Play(ctx context.Context, track lavalink.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playLocked(ctx, track)
}

func (p *Player) playLocked(ctx context.Context, track lavalink.Track) error {
	if err := p.link.PlayTrack(ctx, track); err != nil {
		return err
	}
	p.state = PlayerStatePlaying
	return nil
}

// PlayAt moves the cursor to the given index (clamped) and starts playback.
func (p *Player) PlayAt(ctx context.Context, index int) (lavalink.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	track, ok := p.playlist.SetPosition(index)
	if !ok {
		return lavalink.Track{}, &Failure{Message: MsgMusicPlaylistEmpty}
	}
	if err := p.playLocked(ctx, track); err != nil {
		return lavalink.Track{}, err
	}
	return track, nil
}

// PlayNext advances the cursor and plays the next track. When the playlist
// has no next track it reports false and playback state is left alone, except
// that a previously playing player goes idle.
func (p *Player) PlayNext(ctx context.Context) (lavalink.Track, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playNextLocked(ctx)
}

func (p *Player) playNextLocked(ctx context.Context) (lavalink.Track, bool, error) {
	if !p.playlist.HasNext() {
		// Step past the end so Current reports nothing once exhausted.
		p.playlist.Advance()
		if p.state == PlayerStatePlaying || p.state == PlayerStatePaused {
			p.state = PlayerStateIdle
		}
		return lavalink.Track{}, false, nil
	}

	track, ok := p.playlist.Advance()
	if !ok {
		if p.state == PlayerStatePlaying || p.state == PlayerStatePaused {
			p.state = PlayerStateIdle
		}
		return lavalink.Track{}, false, nil
	}
	if err := p.playLocked(ctx, track); err != nil {
		return lavalink.Track{}, false, err
	}
	return track, true, nil
}

func (p *Player) Pause(ctx context.Context) (lavalink.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == PlayerStatePaused {
		return lavalink.Track{}, &Failure{Message: MsgMusicAlreadyPaused}
	}
	if p.state != PlayerStatePlaying {
		return lavalink.Track{}, &Failure{Message: MsgMusicNotPlaying}
	}
	if err := p.link.SetPaused(ctx, true); err != nil {
		return lavalink.Track{}, err
	}
	p.state = PlayerStatePaused
	track, _ := p.playlist.Current()
	return track, nil
}

func (p *Player) Resume(ctx context.Context) (lavalink.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != PlayerStatePaused {
		return lavalink.Track{}, &Failure{Message: MsgMusicNotPaused}
	}
	if err := p.link.SetPaused(ctx, false); err != nil {
		return lavalink.Track{}, err
	}
	p.state = PlayerStatePlaying
	track, _ := p.playlist.Current()
	return track, nil
}

// Stop halts playback without advancing the cursor. The resulting track end
// event carries the stopped reason and triggers no further action.
func (p *Player) Stop(ctx context.Context) (lavalink.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != PlayerStatePlaying && p.state != PlayerStatePaused {
		return lavalink.Track{}, &Failure{Message: MsgMusicNotPlaying}
	}
	track, _ := p.playlist.Current()
	if err := p.link.StopTrack(ctx); err != nil {
		return lavalink.Track{}, err
	}
	p.state = PlayerStateIdle
	return track, nil
}

// SetVolume clamps the volume into [0, MaxVolume], applies it on the node and
// returns the effective value.
func (p *Player) SetVolume(ctx context.Context, volume int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	volume = min(max(0, volume), MaxVolume)
	if err := p.link.SetVolume(ctx, volume); err != nil {
		return 0, err
	}
	p.volume = volume
	return volume, nil
}

func (p *Player) Seek(ctx context.Context, position time.Duration) (lavalink.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != PlayerStatePlaying && p.state != PlayerStatePaused {
		return lavalink.Track{}, &Failure{Message: MsgMusicNotPlaying}
	}
	track, ok := p.playlist.Current()
	if !ok {
		return lavalink.Track{}, &Failure{Message: MsgMusicNotPlaying}
	}
	// Live streams have no timeline to seek in.
	if track.Info.IsStream {
		return lavalink.Track{}, &Failure{Message: MsgMusicSeekNotSeekable}
	}
	if err := p.link.SetPosition(ctx, position); err != nil {
		return lavalink.Track{}, err
	}
	return track, nil
}

func (p *Player) Position() time.Duration {
	return p.link.Position()
}

// --- Node event policy ---

func (p *Player) handleTrackStart(track lavalink.Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = PlayerStatePlaying
	LogMusic(MsgMusicTrackStart, p.guildID, track.Info.Title)
}

// handleTrackEnd applies the end-of-track policy: stopped and replaced tracks
// were caused by us and trigger nothing, every other reason advances.
func (p *Player) handleTrackEnd(ctx context.Context, reason lavalink.TrackEndReason) (lavalink.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	LogMusic(MsgMusicTrackEnd, p.guildID, string(reason))
	if reason == lavalink.TrackEndReasonStopped || reason == lavalink.TrackEndReasonReplaced {
		return lavalink.Track{}, false
	}

	track, ok, err := p.playNextLocked(ctx)
	if err != nil {
		LogError(MsgGenericError, err)
		return lavalink.Track{}, false
	}
	return track, ok
}

func (p *Player) handleTrackException(ctx context.Context, exception error) (lavalink.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	LogMusic(MsgMusicTrackException, p.guildID, exception)
	track, ok, err := p.playNextLocked(ctx)
	if err != nil {
		LogError(MsgGenericError, err)
		return lavalink.Track{}, false
	}
	return track, ok
}

func (p *Player) handleTrackStuck(ctx context.Context, threshold time.Duration) (lavalink.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	LogMusic(MsgMusicTrackStuck, p.guildID, threshold)
	track, ok, err := p.playNextLocked(ctx)
	if err != nil {
		LogError(MsgGenericError, err)
		return lavalink.Track{}, false
	}
	return track, ok
}

// ===========================
// Music system
// ===========================

// MusicSystem tracks one Player per guild, mirroring the session registry the
// voice lifecycle handlers operate on. Gateway and database access go through
// the two function fields so the session lifecycle stays testable.
type MusicSystem struct {
	mu       sync.Mutex
	client   *bot.Client
	node     disgolink.Client
	sessions map[snowflake.ID]*Player

	sendVoiceUpdate func(ctx context.Context, guildID snowflake.ID, channelID *snowflake.ID) error
	loadSettings    func(ctx context.Context, guildID snowflake.ID) (*MusicSettings, error)
}

var MusicManager *MusicSystem

func InitMusicSystem(client *bot.Client, node disgolink.Client) {
	MusicManager = &MusicSystem{
		client:   client,
		node:     node,
		sessions: map[snowflake.ID]*Player{},
		sendVoiceUpdate: func(ctx context.Context, guildID snowflake.ID, channelID *snowflake.ID) error {
			return client.UpdateVoiceState(ctx, guildID, channelID, false, channelID != nil)
		},
		loadSettings: GetMusicSettings,
	}
}

func init() {
	RegisterVoiceStateUpdateHandler(onMusicVoiceStateUpdate)
}

func (ms *MusicSystem) GetPlayer(guildID snowflake.ID) *Player {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.sessions[guildID]
}

func (ms *MusicSystem) PlayerCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.sessions)
}

// Connect joins the given voice channel and returns the guild's player,
// creating it with its persisted settings on first join. An existing player
// is moved instead. When the join itself fails, a newly created player is
// torn back down so no session lingers without a voice connection.
func (ms *MusicSystem) Connect(ctx context.Context, guildID, voiceChannelID, textChannelID snowflake.ID) (*Player, error) {
	ms.mu.Lock()
	player, exists := ms.sessions[guildID]
	if !exists {
		player = NewPlayer(guildID, NewNodeLink(ms.node.Player(guildID)))
		ms.sessions[guildID] = player
	}
	ms.mu.Unlock()

	player.setChannels(voiceChannelID, textChannelID)

	if !exists {
		settings, err := ms.loadSettings(ctx, guildID)
		if err != nil {
			LogWarn(MsgMusicSettingsFail, guildID, err)
		} else {
			player.mu.Lock()
			player.volume = settings.Volume
			player.playlist.SetRepeat(settings.Repeat)
			player.mu.Unlock()
		}
		LogMusic(MsgMusicPlayerCreated, guildID, voiceChannelID)
	}

	if err := ms.sendVoiceUpdate(ctx, guildID, &voiceChannelID); err != nil {
		if !exists {
			ms.cleanup(ctx, guildID)
		}
		return nil, err
	}

	if !exists {
		_ = player.link.SetVolume(ctx, player.Volume())
	}
	return player, nil
}

// Disconnect leaves the voice channel and destroys the guild's player.
func (ms *MusicSystem) Disconnect(ctx context.Context, guildID snowflake.ID) error {
	ms.cleanup(ctx, guildID)
	return ms.sendVoiceUpdate(ctx, guildID, nil)
}

// cleanup drops the session without touching the gateway, for the case where
// Discord already removed the bot from the channel.
func (ms *MusicSystem) cleanup(ctx context.Context, guildID snowflake.ID) {
	ms.mu.Lock()
	player := ms.sessions[guildID]
	delete(ms.sessions, guildID)
	ms.mu.Unlock()

	if player == nil {
		return
	}
	player.markDisconnected()

	if lp := ms.node.ExistingPlayer(guildID); lp != nil {
		_ = lp.Destroy(ctx)
	}
	LogMusic(MsgMusicPlayerDestroyed, guildID)
}

// Shutdown destroys all players, used during process teardown.
func (ms *MusicSystem) Shutdown(ctx context.Context) {
	ms.mu.Lock()
	var guilds []snowflake.ID
	for guildID := range ms.sessions {
		guilds = append(guilds, guildID)
	}
	ms.mu.Unlock()

	for _, guildID := range guilds {
		_ = ms.Disconnect(ctx, guildID)
	}
}

// --- Node events ---

func (ms *MusicSystem) handleTrackStart(guildID snowflake.ID, track lavalink.Track) {
	if player := ms.GetPlayer(guildID); player != nil {
		player.handleTrackStart(track)
	}
}

func (ms *MusicSystem) handleTrackEnd(guildID snowflake.ID, reason lavalink.TrackEndReason) {
	player := ms.GetPlayer(guildID)
	if player == nil {
		return
	}
	if track, ok := player.handleTrackEnd(AppContext, reason); ok {
		ms.notifyPlaying(player, track)
	}
}

func (ms *MusicSystem) handleTrackException(guildID snowflake.ID, exception error) {
	player := ms.GetPlayer(guildID)
	if player == nil {
		return
	}
	if track, ok := player.handleTrackException(AppContext, exception); ok {
		ms.notifyPlaying(player, track)
	}
}

func (ms *MusicSystem) handleTrackStuck(guildID snowflake.ID, threshold time.Duration) {
	player := ms.GetPlayer(guildID)
	if player == nil {
		return
	}
	if track, ok := player.handleTrackStuck(AppContext, threshold); ok {
		ms.notifyPlaying(player, track)
	}
}

func (ms *MusicSystem) notifyPlaying(player *Player, track lavalink.Track) {
	channelID := player.TextChannelID()
	if channelID == 0 {
		return
	}
	if err := SendChannelEmbed(ms.client, channelID, MessageEmbed(MsgMusicAutoPlaying, track.Info.Title)); err != nil {
		LogWarn(MsgMusicNotifyFail, err)
	}
}

// --- Voice lifecycle ---

func onMusicVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	if MusicManager != nil {
		MusicManager.onVoiceStateUpdate(event)
	}
}

func (ms *MusicSystem) onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	guildID := event.VoiceState.GuildID
	player := ms.GetPlayer(guildID)
	if player == nil {
		return
	}

	client := event.Client()
	if event.VoiceState.UserID == client.ApplicationID {
		if event.VoiceState.ChannelID == nil {
			// Kicked from the channel or the leave went through.
			ms.cleanup(AppContext, guildID)
			return
		}
		player.setChannels(*event.VoiceState.ChannelID, 0)
		player.markConnected()
		return
	}

	// A human moved. Leave when the bot's channel has no listeners left.
	channelID := player.VoiceChannelID()
	if channelID == 0 {
		return
	}
	oldChannelID := event.OldVoiceState.ChannelID
	if oldChannelID == nil || *oldChannelID != channelID {
		return
	}
	if event.VoiceState.ChannelID != nil && *event.VoiceState.ChannelID == channelID {
		return
	}

	if countHumansInChannel(client, guildID, channelID) > 0 {
		return
	}

	if textChannelID := player.TextChannelID(); textChannelID != 0 {
		_ = SendChannelEmbed(client, textChannelID, MessageEmbed(MsgMusicLastHumanLeft, channelMention(channelID)))
	}
	if err := ms.Disconnect(AppContext, guildID); err != nil {
		LogWarn(MsgGenericError, err)
	}
}

func countHumansInChannel(client *bot.Client, guildID, channelID snowflake.ID) int {
	count := 0
	for state := range client.Caches.VoiceStates(guildID) {
		if state.ChannelID == nil || *state.ChannelID != channelID {
			continue
		}
		if member, ok := client.Caches.Member(guildID, state.UserID); ok && member.User.Bot {
			continue
		}
		if state.UserID == client.ApplicationID {
			continue
		}
		count++
	}
	return count
}

func channelMention(channelID snowflake.ID) string {
	return "<#" + channelID.String() + ">"
}

// --- Permission checks ---

func checkBotVoicePermissions(client *bot.Client, guildID, channelID snowflake.ID) error {
	channel, ok := client.Caches.Channel(channelID)
	if !ok {
		return nil
	}
	selfMember, ok := client.Caches.Member(guildID, client.ApplicationID)
	if !ok {
		return nil
	}

	required := discord.PermissionConnect | discord.PermissionSpeak
	perms := getMemberPermissionsInChannel(client, channel, selfMember)
	if !perms.Has(required) {
		missing := required &^ perms
		return Failuref(MsgFailMissingPerms, FormatPermissions(missing))
	}
	return nil
}

func getMemberPermissionsInChannel(client *bot.Client, channel discord.GuildChannel, member discord.Member) discord.Permissions {
	guild, ok := client.Caches.Guild(channel.GuildID())
	if !ok {
		return 0
	}

	// Owner bypass
	if guild.OwnerID == member.User.ID {
		return discord.PermissionsAll
	}

	// 1. Base permissions (guild-wide roles)
	var perms discord.Permissions
	if everyoneRole, ok := client.Caches.Role(guild.ID, snowflake.ID(guild.ID)); ok {
		perms |= everyoneRole.Permissions
	}
	for _, roleID := range member.RoleIDs {
		if role, ok := client.Caches.Role(guild.ID, roleID); ok {
			perms |= role.Permissions
		}
	}

	// Administrator bypass
	if perms.Has(discord.PermissionAdministrator) {
		return discord.PermissionsAll
	}

	// 2. Overwrites
	overwrites := channel.PermissionOverwrites()

	// 2.1 @everyone Overwrites
	for _, o := range overwrites {
		if o.ID() == snowflake.ID(guild.ID) {
			if ro, ok := o.(discord.RolePermissionOverwrite); ok {
				perms &^= ro.Deny
				perms |= ro.Allow
			}
			break
		}
	}

	// 2.2 Role Overwrites
	var roleAllow, roleDeny discord.Permissions
	for _, o := range overwrites {
		for _, rID := range member.RoleIDs {
			if o.ID() == rID {
				if ro, ok := o.(discord.RolePermissionOverwrite); ok {
					roleDeny |= ro.Deny
					roleAllow |= ro.Allow
				}
				break
			}
		}
	}
	perms &^= roleDeny
	perms |= roleAllow

	// 2.3 Member Overwrites
	for _, o := range overwrites {
		if o.ID() == member.User.ID {
			if mo, ok := o.(discord.MemberPermissionOverwrite); ok {
				perms &^= mo.Deny
				perms |= mo.Allow
			}
			break
		}
	}

	return perms
}
