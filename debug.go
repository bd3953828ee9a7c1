package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
)

func init() {
	RegisterCommand(discord.SlashCommandCreate{
		Name:        "debug",
		Description: "Bot diagnostics.",
		Contexts:    []discord.InteractionContextType{discord.InteractionContextTypeGuild},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "stats",
				Description: "Show runtime statistics.",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "error",
				Description: "Send a preview report to the logging webhook.",
			},
		},
	}, handleDebug)
}

func handleDebug(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}

	var err error
	switch *data.SubCommandName {
	case "stats":
		err = debugStats(event)
	case "error":
		err = debugError(event)
	}
	if err != nil {
		RespondCommandError(event, err)
	}
}

// ===========================
// Command logging and error rendering
// ===========================

// LogCommandUse records every command invocation on the session logger.
func LogCommandUse(event *events.ApplicationCommandInteractionCreate) {
	name := event.Data.CommandName()
	if data, ok := event.Data.(discord.SlashCommandInteractionData); ok && data.SubCommandName != nil {
		name += " " + *data.SubCommandName
	}
	guild := "DM"
	if event.GuildID() != nil {
		guild = event.GuildID().String()
	}
	LogSession(MsgDebugCommandUsed, name, event.User().Username, event.User().ID, guild)
}

// RespondCommandError renders a command error to the user. Failures carry a
// user-facing message; anything else is reported to the developer webhook and
// shown as a generic notice. Works whether or not the interaction was already
// deferred: the initial response is tried first, the edit is the fallback.
func RespondCommandError(event *events.ApplicationCommandInteractionCreate, err error) {
	var embed discord.Embed
	if failure, ok := IsFailure(err); ok {
		embed = FailureEmbed("%s", failure.Message)
	} else {
		LogError(MsgGenericError, err)
		ReportError(fmt.Sprintf("Command `/%s` failed", event.Data.CommandName()), err)
		embed = FailureEmbed(MsgDebugUnhandled)
	}
	if respondErr := RespondEmbed(event, embed, true); respondErr != nil {
		_ = EditResponseEmbed(event.Client(), event.ApplicationID(), event.Token(), embed)
	}
}

// ReportError delivers an error to the configured logging webhook. A missing
// webhook makes this a no-op.
func ReportError(title string, err error) {
	if GlobalConfig == nil || GlobalConfig.LoggingWebhook == "" {
		return
	}

	now := time.Now()
	payload := struct {
		Embeds []discord.Embed `json:"embeds"`
	}{
		Embeds: []discord.Embed{{
			Title:       title,
			Description: fmt.Sprintf("```\n%v\n```", err),
			Color:       ColorFailure,
			Timestamp:   &now,
		}},
	}
	body, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		LogWarn(MsgDebugReportFail, marshalErr)
		return
	}

	resp, postErr := HttpClient.Post(GlobalConfig.LoggingWebhook, "application/json", bytes.NewReader(body))
	if postErr != nil {
		LogWarn(MsgDebugReportFail, postErr)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		LogWarn(MsgDebugReportFail, fmt.Errorf("webhook returned %s", resp.Status))
	}
}

// ===========================
// Commands
// ===========================

func debugStats(event *events.ApplicationCommandInteractionCreate) error {
	guilds := 0
	for range event.Client().Caches.Guilds() {
		guilds++
	}
	players := 0
	if MusicManager != nil {
		players = MusicManager.PlayerCount()
	}
	banners, _ := GetBannersCount(AppContext)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	embed := discord.Embed{
		Title: GetProjectName(),
		Color: ColorMessage,
		Fields: []discord.EmbedField{
			{Name: "Uptime", Value: FormatDuration(time.Since(StartupTime))},
			{Name: "Guilds", Value: fmt.Sprintf("%d", guilds)},
			{Name: "Players", Value: fmt.Sprintf("%d", players)},
			{Name: "Banners", Value: fmt.Sprintf("%d", banners)},
			{Name: "Memory", Value: fmt.Sprintf("%.1f MB", float64(mem.Alloc)/(1<<20))},
			{Name: "Runtime", Value: runtime.Version()},
		},
	}
	if err := RespondEmbed(event, embed, false); err != nil {
		LogDebug(MsgDebugStatsSendFail, err)
	}
	return nil
}

func debugError(event *events.ApplicationCommandInteractionCreate) error {
	if GlobalConfig == nil || !GlobalConfig.IsOwner(event.User().ID) {
		return &Failure{Message: MsgFailOwnerOnly}
	}
	if GlobalConfig.LoggingWebhook == "" {
		return &Failure{Message: MsgDebugNoWebhook}
	}

	ReportError("Error report preview", errors.New("this is a preview error report"))
	return RespondEmbed(event, SuccessEmbed(MsgDebugPreviewSent), true)
}
