package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"
)

const playlistPageSize = 10

func init() {
	RegisterCommand(discord.SlashCommandCreate{
		Name:        "music",
		Description: "Play music in a voice channel.",
		Contexts:    []discord.InteractionContextType{discord.InteractionContextTypeGuild},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "join",
				Description: "Connect to your voice channel.",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "leave",
				Description: "Disconnect from the voice channel.",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "play",
				Description: "Play a link, a search term, or resume the playlist.",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "source",
						Description: "A link or search term to add to the playlist.",
					},
					discord.ApplicationCommandOptionInt{
						Name:        "position",
						Description: "A playlist position to jump to.",
						MinValue:    intPtr(1),
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "pause",
				Description: "Pause playback.",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "resume",
				Description: "Resume paused playback.",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "stop",
				Description: "Stop playback without clearing the playlist.",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "skip",
				Description: "Skip the current track.",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "seek",
				Description: "Jump to a position in the current track.",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "position",
						Description: "Target position, e.g. 1m30s or 02:15.",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "playlist",
				Description: "Browse the playlist.",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "remove",
				Description: "Remove a track from the playlist.",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "position",
						Description: "The playlist position to remove.",
						Required:    true,
						MinValue:    intPtr(1),
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "clear",
				Description: "Remove all tracks from the playlist.",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "shuffle",
				Description: "Shuffle the playlist.",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "nowplaying",
				Description: "Show the currently playing track.",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "repeat",
				Description: "Set the repeat mode.",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "mode",
						Description: "The repeat mode.",
						Required:    true,
						Choices: []discord.ApplicationCommandOptionChoiceString{
							{Name: "off", Value: string(RepeatOff)},
							{Name: "all", Value: string(RepeatAll)},
							{Name: "track", Value: string(RepeatTrack)},
						},
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "volume",
				Description: "Set the playback volume.",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "level",
						Description: "Volume in percent.",
						Required:    true,
						MinValue:    intPtr(0),
						MaxValue:    intPtr(MaxVolume),
					},
				},
			},
		},
	}, handleMusic)

	RegisterComponentHandler("plpage:", onPlaylistPageComponent)
}

func handleMusic(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}

	var err error
	switch *data.SubCommandName {
	case "join":
		err = musicJoin(event)
	case "leave":
		err = musicLeave(event)
	case "play":
		err = musicPlay(event)
	case "pause":
		err = musicPause(event)
	case "resume":
		err = musicResume(event)
	case "stop":
		err = musicStop(event)
	case "skip":
		err = musicSkip(event)
	case "seek":
		err = musicSeek(event)
	case "playlist":
		err = musicPlaylist(event)
	case "remove":
		err = musicRemove(event)
	case "clear":
		err = musicClear(event)
	case "shuffle":
		err = musicShuffle(event)
	case "nowplaying":
		err = musicNowPlaying(event)
	case "repeat":
		err = musicRepeat(event)
	case "volume":
		err = musicVolume(event)
	}
	if err != nil {
		RespondCommandError(event, err)
	}
}

// ===========================
// Preconditions
// ===========================

func requireGuildID(event *events.ApplicationCommandInteractionCreate) (snowflake.ID, error) {
	if event.GuildID() == nil {
		return 0, &Failure{Message: MsgFailGuildOnly}
	}
	return *event.GuildID(), nil
}

// requireUserVoiceChannel resolves the invoking user's voice channel.
func requireUserVoiceChannel(event *events.ApplicationCommandInteractionCreate, guildID snowflake.ID) (snowflake.ID, error) {
	state, ok := event.Client().Caches.VoiceState(guildID, event.User().ID)
	if !ok || state.ChannelID == nil {
		return 0, &Failure{Message: MsgFailNoVoiceChannel}
	}
	return *state.ChannelID, nil
}

// requirePlayer resolves the guild's player and checks the invoking user
// shares its voice channel.
func requirePlayer(event *events.ApplicationCommandInteractionCreate, guildID snowflake.ID) (*Player, error) {
	if MusicManager == nil {
		return nil, &Failure{Message: MsgFailNotConnected}
	}
	player := MusicManager.GetPlayer(guildID)
	if player == nil {
		return nil, &Failure{Message: MsgFailNotConnected}
	}

	userChannelID, err := requireUserVoiceChannel(event, guildID)
	if err != nil {
		return nil, err
	}
	if botChannelID := player.VoiceChannelID(); botChannelID != 0 && botChannelID != userChannelID {
		return nil, Failuref(MsgFailWrongVoiceChannel, channelMention(botChannelID))
	}
	return player, nil
}

// ===========================
// Connection commands
// ===========================

func musicJoin(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	channelID, err := requireUserVoiceChannel(event, guildID)
	if err != nil {
		return err
	}
	if MusicManager == nil {
		return &Failure{Message: MsgFailNodeUnavailable}
	}
	if err := checkBotVoicePermissions(event.Client(), guildID, channelID); err != nil {
		return err
	}

	if _, err := MusicManager.Connect(AppContext, guildID, channelID, event.Channel().ID()); err != nil {
		return err
	}
	return RespondEmbed(event, SuccessEmbed(MsgMusicJoined, channelMention(channelID)), false)
}

func musicLeave(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	player, err := requirePlayer(event, guildID)
	if err != nil {
		return err
	}

	channelID := player.VoiceChannelID()
	if err := MusicManager.Disconnect(AppContext, guildID); err != nil {
		return err
	}
	return RespondEmbed(event, SuccessEmbed(MsgMusicLeft, channelMention(channelID)), false)
}

// ===========================
// Playback commands
// ===========================

func musicPlay(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	channelID, err := requireUserVoiceChannel(event, guildID)
	if err != nil {
		return err
	}
	if MusicManager == nil || MusicResolver == nil {
		return &Failure{Message: MsgFailNodeUnavailable}
	}

	data := event.SlashCommandInteractionData()
	source, hasSource := data.OptString("source")
	position, hasPosition := data.OptInt("position")
	if hasSource && hasPosition {
		return &Failure{Message: MsgMusicSourcePositionConflict}
	}

	player := MusicManager.GetPlayer(guildID)
	if player == nil {
		if err := checkBotVoicePermissions(event.Client(), guildID, channelID); err != nil {
			return err
		}
		player, err = MusicManager.Connect(AppContext, guildID, channelID, event.Channel().ID())
		if err != nil {
			return err
		}
	} else if botChannelID := player.VoiceChannelID(); botChannelID != 0 && botChannelID != channelID {
		return Failuref(MsgFailWrongVoiceChannel, channelMention(botChannelID))
	}

	// Resolution may take a while and can suspend on a prompt.
	if err := event.DeferCreateMessage(false); err != nil {
		return err
	}

	if hasPosition {
		track, err := player.PlayAt(AppContext, position-1)
		if err != nil {
			return err
		}
		return EditResponseEmbed(event.Client(), event.ApplicationID(), event.Token(),
			SuccessEmbed(MsgMusicStartingFrom+"\n"+MsgMusicAutoPlaying, position, track.Info.Title))
	}

	if !hasSource {
		// Bare play resumes the cursor.
		track, ok := player.CurrentTrack()
		if !ok {
			if player.PlaylistLength() == 0 {
				return &Failure{Message: MsgMusicPlaylistEmpty}
			}
			return &Failure{Message: MsgMusicPlaylistExhausted}
		}
		if err := player.Play(AppContext, track); err != nil {
			return err
		}
		return EditResponseEmbed(event.Client(), event.ApplicationID(), event.Token(),
			SuccessEmbed(MsgMusicAutoPlaying, track.Info.Title))
	}

	prompt := NewInteractionPrompt(event)
	tracks, err := MusicResolver.Resolve(AppContext, source, prompt)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return &Failure{Message: MsgMusicSearchNoResults}
	}

	first := player.AddTracks(tracks...)
	message := fmt.Sprintf(MsgMusicAddedTrack, tracks[0].Info.Title)
	if len(tracks) > 1 {
		message = fmt.Sprintf(MsgMusicAddedTracks, len(tracks))
	}

	if state := player.State(); state != PlayerStatePlaying && state != PlayerStatePaused {
		track, err := player.PlayAt(AppContext, first)
		if err != nil {
			return err
		}
		message += "\n" + fmt.Sprintf(MsgMusicAutoPlaying, track.Info.Title)
	}
	return EditResponseEmbed(event.Client(), event.ApplicationID(), event.Token(), SuccessEmbed("%s", message))
}

func musicPause(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	player, err := requirePlayer(event, guildID)
	if err != nil {
		return err
	}

	track, err := player.Pause(AppContext)
	if err != nil {
		return err
	}
	return RespondEmbed(event, SuccessEmbed(MsgMusicPaused, track.Info.Title), false)
}

func musicResume(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	player, err := requirePlayer(event, guildID)
	if err != nil {
		return err
	}

	track, err := player.Resume(AppContext)
	if err != nil {
		return err
	}
	return RespondEmbed(event, SuccessEmbed(MsgMusicResumed, track.Info.Title), false)
}

func musicStop(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	player, err := requirePlayer(event, guildID)
	if err != nil {
		return err
	}

	track, err := player.Stop(AppContext)
	if err != nil {
		return err
	}
	return RespondEmbed(event, SuccessEmbed(MsgMusicStopped, track.Info.Title), false)
}

func musicSkip(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	player, err := requirePlayer(event, guildID)
	if err != nil {
		return err
	}

	track, ok := player.CurrentTrack()
	if !ok {
		return &Failure{Message: MsgMusicNotPlaying}
	}

	if player.HasNext() {
		if _, _, err := player.PlayNext(AppContext); err != nil {
			return err
		}
	} else {
		if _, err := player.Stop(AppContext); err != nil {
			return err
		}
	}
	return RespondEmbed(event, SuccessEmbed(MsgMusicSkipped, track.Info.Title), false)
}

func musicSeek(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	player, err := requirePlayer(event, guildID)
	if err != nil {
		return err
	}

	data := event.SlashCommandInteractionData()
	position, err := ParseTrackPosition(data.String("position"))
	if err != nil {
		return &Failure{Message: MsgMusicSeekInvalid}
	}

	track, err := player.Seek(AppContext, position)
	if err != nil {
		return err
	}
	target := FormatTrackDuration(lavalink.Duration(position.Milliseconds()))
	return RespondEmbed(event, SuccessEmbed(MsgMusicSeeked, target, track.Info.Title), false)
}

// ===========================
// Playlist commands
// ===========================

func musicPlaylist(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	if MusicManager == nil || MusicManager.GetPlayer(guildID) == nil {
		return &Failure{Message: MsgFailNotConnected}
	}
	player := MusicManager.GetPlayer(guildID)

	embed, components := buildPlaylistPage(player, 0)
	return event.CreateMessage(discord.MessageCreate{
		Embeds:     []discord.Embed{embed},
		Components: components,
	})
}

// buildPlaylistPage renders one page of the playlist browser. Pages are
// stateless; the page index travels in the component custom IDs.
func buildPlaylistPage(player *Player, page int) (discord.Embed, []discord.LayoutComponent) {
	tracks, position, repeat := player.Snapshot()

	if len(tracks) == 0 {
		return MessageEmbed(MsgMusicPlaylistEmpty), nil
	}

	pages := (len(tracks) + playlistPageSize - 1) / playlistPageSize
	page = min(max(0, page), pages-1)
	start := page * playlistPageSize
	end := min(start+playlistPageSize, len(tracks))

	var sb strings.Builder
	for i := start; i < end; i++ {
		track := tracks[i]
		marker := " "
		if i == position {
			marker = "▶"
		}
		title := Truncate(track.Info.Title, searchTitleWidth)
		if track.Info.URI != nil {
			fmt.Fprintf(&sb, "%s `#%03d` [%s](%s) (%s)\n", marker, i+1, title, *track.Info.URI, FormatTrackDuration(track.Info.Length))
		} else {
			fmt.Fprintf(&sb, "%s `#%03d` %s (%s)\n", marker, i+1, title, FormatTrackDuration(track.Info.Length))
		}
	}

	embed := discord.Embed{
		Title:       "Playlist",
		Description: sb.String(),
		Color:       ColorMessage,
		Footer: &discord.EmbedFooter{
			Text: fmt.Sprintf("Page %d/%d • %d track(s) • repeat: %s", page+1, pages, len(tracks), repeat),
		},
	}

	if pages <= 1 {
		return embed, nil
	}

	prefix := "plpage:" + player.GuildID().String() + ":"
	components := []discord.LayoutComponent{
		discord.NewActionRow(
			discord.NewButton(discord.ButtonStyleSecondary, "Prev", prefix+strconv.Itoa(page-1), "", 0).WithDisabled(page == 0),
			discord.NewButton(discord.ButtonStyleSecondary, "Next", prefix+strconv.Itoa(page+1), "", 0).WithDisabled(page >= pages-1),
		),
	}
	return embed, components
}

func onPlaylistPageComponent(event *events.ComponentInteractionCreate) {
	parts := strings.Split(event.Data.CustomID(), ":")
	if len(parts) != 3 || MusicManager == nil {
		_ = event.DeferUpdateMessage()
		return
	}
	guildID, err := snowflake.Parse(parts[1])
	if err != nil {
		_ = event.DeferUpdateMessage()
		return
	}
	page, _ := strconv.Atoi(parts[2])

	player := MusicManager.GetPlayer(guildID)
	if player == nil {
		embeds := []discord.Embed{FailureEmbed("%s", MsgFailNotConnected)}
		components := []discord.LayoutComponent{}
		_ = event.UpdateMessage(discord.MessageUpdate{Embeds: &embeds, Components: &components})
		return
	}

	embed, components := buildPlaylistPage(player, page)
	embeds := []discord.Embed{embed}
	_ = event.UpdateMessage(discord.MessageUpdate{Embeds: &embeds, Components: &components})
}

func musicRemove(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	player, err := requirePlayer(event, guildID)
	if err != nil {
		return err
	}

	data := event.SlashCommandInteractionData()
	position := data.Int("position")

	length := player.PlaylistLength()
	if length == 0 {
		return &Failure{Message: MsgMusicPlaylistEmpty}
	}
	track, ok := player.RemoveTrack(position - 1)
	if !ok {
		return Failuref(MsgMusicPositionOutOfRange, length)
	}
	return RespondEmbed(event, SuccessEmbed(MsgMusicRemoved, track.Info.Title), false)
}

func musicClear(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	player, err := requirePlayer(event, guildID)
	if err != nil {
		return err
	}

	count := player.PlaylistLength()
	if count == 0 {
		return &Failure{Message: MsgMusicPlaylistEmpty}
	}

	if err := event.DeferCreateMessage(false); err != nil {
		return err
	}
	prompt := NewInteractionPrompt(event)
	if err := prompt.Confirm(AppContext, fmt.Sprintf(MsgMusicClearConfirm, count)); err != nil {
		return err
	}

	cleared := player.ClearTracks()
	return EditResponseEmbed(event.Client(), event.ApplicationID(), event.Token(), SuccessEmbed(MsgMusicCleared, cleared))
}

func musicShuffle(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	player, err := requirePlayer(event, guildID)
	if err != nil {
		return err
	}

	count := player.ShuffleTracks()
	if count == 0 {
		return &Failure{Message: MsgMusicPlaylistEmpty}
	}
	return RespondEmbed(event, SuccessEmbed(MsgMusicShuffled, count), false)
}

func musicNowPlaying(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	if MusicManager == nil {
		return &Failure{Message: MsgFailNotConnected}
	}
	player := MusicManager.GetPlayer(guildID)
	if player == nil {
		return &Failure{Message: MsgFailNotConnected}
	}

	track, ok := player.CurrentTrack()
	if !ok {
		return &Failure{Message: MsgMusicNotPlaying}
	}
	_, position, _ := player.Snapshot()

	elapsed := FormatTrackDuration(lavalink.Duration(player.Position().Milliseconds()))
	duration := FormatTrackDuration(track.Info.Length)
	if track.Info.IsStream {
		duration = "live"
	}

	var description string
	if track.Info.URI != nil {
		description = fmt.Sprintf("`#%03d` [%s](%s)\n`%s / %s`", position+1, track.Info.Title, *track.Info.URI, elapsed, duration)
	} else {
		description = fmt.Sprintf("`#%03d` %s\n`%s / %s`", position+1, track.Info.Title, elapsed, duration)
	}

	embed := discord.Embed{
		Title:       "Now Playing",
		Description: description,
		Color:       ColorMessage,
	}
	if track.Info.ArtworkURL != nil {
		embed.Thumbnail = &discord.EmbedResource{URL: *track.Info.ArtworkURL}
	}
	return RespondEmbed(event, embed, false)
}

func musicRepeat(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	player, err := requirePlayer(event, guildID)
	if err != nil {
		return err
	}

	data := event.SlashCommandInteractionData()
	mode := ParseRepeat(data.String("mode"))
	player.SetRepeatMode(mode)
	if err := SetMusicRepeat(AppContext, guildID, mode); err != nil {
		LogWarn(MsgGenericError, err)
	}

	message := MsgMusicRepeatOff
	switch mode {
	case RepeatAll:
		message = MsgMusicRepeatAll
	case RepeatTrack:
		message = MsgMusicRepeatTrack
	}
	return RespondEmbed(event, SuccessEmbed("%s", message), false)
}

func musicVolume(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	player, err := requirePlayer(event, guildID)
	if err != nil {
		return err
	}

	data := event.SlashCommandInteractionData()
	volume, err := player.SetVolume(AppContext, data.Int("level"))
	if err != nil {
		return err
	}
	if err := SetMusicVolume(AppContext, guildID, volume); err != nil {
		LogWarn(MsgGenericError, err)
	}
	return RespondEmbed(event, SuccessEmbed(MsgMusicVolumeSet, volume), false)
}
