package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Embeds
// ============================================================================

const (
	ColorMessage = 0xE26682
	ColorSuccess = 0x2ECC71
	ColorWarning = 0xF1C40F
	ColorFailure = 0xE74C3C
)

func MessageEmbed(format string, v ...any) discord.Embed {
	return discord.Embed{Description: fmt.Sprintf(format, v...), Color: ColorMessage}
}

func SuccessEmbed(format string, v ...any) discord.Embed {
	return discord.Embed{Description: fmt.Sprintf(format, v...), Color: ColorSuccess}
}

func WarningEmbed(format string, v ...any) discord.Embed {
	return discord.Embed{Description: fmt.Sprintf(format, v...), Color: ColorWarning}
}

func FailureEmbed(format string, v ...any) discord.Embed {
	return discord.Embed{Description: fmt.Sprintf(format, v...), Color: ColorFailure}
}

// ============================================================================
// Interaction Helpers
// ============================================================================

// interactionResponder covers both command and component interaction events.
type interactionResponder interface {
	CreateMessage(messageCreate discord.MessageCreate, opts ...rest.RequestOpt) error
}

func embedMessageCreate(embed discord.Embed, ephemeral bool) discord.MessageCreate {
	var flags discord.MessageFlags
	if ephemeral {
		flags = discord.MessageFlagEphemeral
	}
	return discord.MessageCreate{
		Embeds: []discord.Embed{embed},
		Flags:  flags,
	}
}

func RespondEmbed(event interactionResponder, embed discord.Embed, ephemeral bool) error {
	return event.CreateMessage(embedMessageCreate(embed, ephemeral))
}

// EditResponseEmbed replaces the original (usually deferred) interaction
// response with a single embed and no components.
func EditResponseEmbed(client *bot.Client, applicationID snowflake.ID, token string, embed discord.Embed) error {
	embeds := []discord.Embed{embed}
	components := []discord.LayoutComponent{}
	_, err := client.Rest.UpdateInteractionResponse(applicationID, token, discord.MessageUpdate{
		Embeds:     &embeds,
		Components: &components,
	})
	return err
}

func FollowupEmbed(client *bot.Client, applicationID snowflake.ID, token string, embed discord.Embed, ephemeral bool) error {
	_, err := client.Rest.CreateFollowupMessage(applicationID, token, embedMessageCreate(embed, ephemeral))
	return err
}

func SendChannelEmbed(client *bot.Client, channelID snowflake.ID, embed discord.Embed) error {
	_, err := client.Rest.CreateMessage(channelID, discord.MessageCreate{Embeds: []discord.Embed{embed}})
	return err
}

// ============================================================================
// Helper Functions
// ============================================================================

func intPtr(i int) *int {
	return &i
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Truncate truncates a string to the specified length with ellipsis at the end.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// FormatPermissions renders the named subset of permissions we gate on as a
// readable list.
func FormatPermissions(perms discord.Permissions) string {
	named := []struct {
		perm discord.Permissions
		name string
	}{
		{discord.PermissionConnect, "Connect"},
		{discord.PermissionSpeak, "Speak"},
		{discord.PermissionManageGuild, "Manage Server"},
	}

	var parts []string
	for _, n := range named {
		if perms.Has(n.perm) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, ", ")
}

// ============================================================================
// Time Utilities
// ============================================================================

func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "∞"
	}
	h, m, s := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatTrackDuration renders a track duration as mm:ss, or h:mm:ss for
// tracks longer than an hour.
func FormatTrackDuration(d lavalink.Duration) string {
	total := int(d.Milliseconds() / 1000)
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// ParseTrackPosition parses a seek target. Accepts clock notation (02:15,
// 1:02:15), Go duration notation (1m30s) and plain seconds (90).
func ParseTrackPosition(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty position")
	}

	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, fmt.Errorf("invalid clock notation")
		}
		var total int
		for _, part := range parts {
			v, err := strconv.Atoi(part)
			if err != nil || v < 0 {
				return 0, fmt.Errorf("invalid clock notation")
			}
			total = total*60 + v
		}
		return time.Duration(total) * time.Second, nil
	}

	if v, err := strconv.Atoi(s); err == nil {
		if v < 0 {
			return 0, fmt.Errorf("negative position")
		}
		return time.Duration(v) * time.Second, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid duration notation")
	}
	return d, nil
}
