package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultBannerInterval = 30
	MinBannerInterval     = 5

	bannerMaxFileSize   = 10 << 20
	bannerSweepInterval = 5 * time.Minute
	bannerPageSize      = 5
)

// bannerContentTypes are the image types Discord accepts for guild banners.
var bannerContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/gif":  true,
}

// errBannerGone marks an image URL that no longer resolves. Rotation removes
// such banners instead of retrying them forever.
var errBannerGone = errors.New("banner image no longer exists")

// Guild edits are heavily rate limited by Discord, so rotations across guilds
// are spaced out instead of fired back to back.
var bannerEditLimiter = rate.NewLimiter(rate.Every(2*time.Second), 1)

func init() {
	RegisterCommand(discord.SlashCommandCreate{
		Name:        "banner",
		Description: "Manage the rotating server banner.",
		Contexts:    []discord.InteractionContextType{discord.InteractionContextTypeGuild},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "add",
				Description: "Add an image to the banner rotation.",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "url",
						Description: "A direct link to a png, jpg or gif image.",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "list",
				Description: "Browse, apply and remove rotation banners.",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "toggle",
				Description: "Turn automatic banner rotation on or off.",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "state",
						Description: "The rotation state.",
						Required:    true,
						Choices: []discord.ApplicationCommandOptionChoiceString{
							{Name: "on", Value: "on"},
							{Name: "off", Value: "off"},
						},
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "interval",
				Description: "Set how often the banner rotates.",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "minutes",
						Description: "Minutes between rotations.",
						Required:    true,
						MinValue:    intPtr(MinBannerInterval),
					},
				},
			},
		},
	}, handleBanner)

	RegisterComponentHandler("banner:", onBannerComponent)
	RegisterDaemon(LogBanner, startBannerRotator)
}

func handleBanner(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}

	var err error
	switch *data.SubCommandName {
	case "add":
		err = bannerAdd(event)
	case "list":
		err = bannerList(event)
	case "toggle":
		err = bannerToggle(event)
	case "interval":
		err = bannerInterval(event)
	}
	if err != nil {
		RespondCommandError(event, err)
	}
}

// ===========================
// Preconditions
// ===========================

func guildSupportsBanner(client *bot.Client, guildID snowflake.ID) bool {
	guild, ok := client.Caches.Guild(guildID)
	if !ok {
		return false
	}
	return slices.Contains(guild.Features, discord.GuildFeatureBanner)
}

// requireBannerAccess gates banner management on the Manage Server permission
// and on the guild actually having the banner feature unlocked.
func requireBannerAccess(client *bot.Client, guildID snowflake.ID, member *discord.ResolvedMember) error {
	if member == nil || !member.Permissions.Has(discord.PermissionManageGuild) {
		return Failuref(MsgFailUserMissingPerms, FormatPermissions(discord.PermissionManageGuild))
	}
	if !guildSupportsBanner(client, guildID) {
		return &Failure{Message: MsgBannerNotEligible}
	}
	return nil
}

// ===========================
// Image handling
// ===========================

// checkBannerImage validates type and size of an image URL without
// downloading it.
func checkBannerImage(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", &Failure{Message: MsgBannerUnreachable}
	}
	resp, err := HttpClient.Do(req)
	if err != nil {
		return "", &Failure{Message: MsgBannerUnreachable}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return "", errBannerGone
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Failure{Message: MsgBannerUnreachable}
	}

	contentType := strings.ToLower(strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0]))
	if !bannerContentTypes[contentType] {
		return "", &Failure{Message: MsgBannerInvalidType}
	}
	if resp.ContentLength > bannerMaxFileSize {
		return "", &Failure{Message: MsgBannerTooLarge}
	}
	return contentType, nil
}

func fetchBannerImage(ctx context.Context, url string) ([]byte, string, error) {
	contentType, err := checkBannerImage(ctx, url)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &Failure{Message: MsgBannerUnreachable}
	}
	resp, err := HttpClient.Do(req)
	if err != nil {
		return nil, "", &Failure{Message: MsgBannerUnreachable}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &Failure{Message: MsgBannerUnreachable}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, bannerMaxFileSize+1))
	if err != nil {
		return nil, "", &Failure{Message: MsgBannerUnreachable}
	}
	if len(data) > bannerMaxFileSize {
		return nil, "", &Failure{Message: MsgBannerTooLarge}
	}
	return data, contentType, nil
}

// setGuildBanner downloads the image and applies it as the guild banner via a
// raw guild PATCH with a base64 data URI.
func setGuildBanner(ctx context.Context, client *bot.Client, guildID snowflake.ID, url string) error {
	data, contentType, err := fetchBannerImage(ctx, url)
	if err != nil {
		return err
	}

	payload := map[string]string{
		"banner": fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data)),
	}
	route := rest.NewEndpoint(http.MethodPatch, "/guilds/"+guildID.String())
	return client.Rest.Do(route.Compile(nil), payload, nil)
}

// ===========================
// Commands
// ===========================

func bannerAdd(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	if err := requireBannerAccess(event.Client(), guildID, event.Member()); err != nil {
		return err
	}

	url := strings.TrimSpace(event.SlashCommandInteractionData().String("url"))
	if !isURL(url) {
		return &Failure{Message: MsgBannerUnreachable}
	}

	if err := event.DeferCreateMessage(false); err != nil {
		return err
	}
	if _, err := checkBannerImage(AppContext, url); err != nil {
		if errors.Is(err, errBannerGone) {
			return &Failure{Message: MsgBannerUnreachable}
		}
		return err
	}

	added, err := AddBanner(AppContext, guildID, event.User().ID, url)
	if err != nil {
		return err
	}
	if !added {
		return &Failure{Message: MsgBannerDuplicate}
	}

	LogBanner(MsgBannerAddedLog, url, guildID)
	embed := SuccessEmbed(MsgBannerAdded)
	embed.Thumbnail = &discord.EmbedResource{URL: url}
	if err := EditResponseEmbed(event.Client(), event.ApplicationID(), event.Token(), embed); err != nil {
		return err
	}

	if settings, err := GetBannerSettings(AppContext, guildID); err == nil && !settings.Enabled {
		_ = FollowupEmbed(event.Client(), event.ApplicationID(), event.Token(), WarningEmbed(MsgBannerRotationOff), true)
	}
	return nil
}

func bannerList(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	if err := requireBannerAccess(event.Client(), guildID, event.Member()); err != nil {
		return err
	}

	banners, err := GetBanners(AppContext, guildID)
	if err != nil {
		return err
	}
	if len(banners) == 0 {
		return &Failure{Message: MsgBannerNoBanners}
	}

	embed, components := buildBannerPage(guildID, banners, 0)
	return event.CreateMessage(discord.MessageCreate{
		Embeds:     []discord.Embed{embed},
		Components: components,
	})
}

func bannerToggle(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	if err := requireBannerAccess(event.Client(), guildID, event.Member()); err != nil {
		return err
	}

	enabled := event.SlashCommandInteractionData().String("state") == "on"
	if enabled {
		banners, err := GetBanners(AppContext, guildID)
		if err != nil {
			return err
		}
		if len(banners) == 0 {
			return &Failure{Message: MsgBannerNoBanners}
		}
	}

	if err := SetBannerEnabled(AppContext, guildID, enabled); err != nil {
		return err
	}
	if enabled {
		return RespondEmbed(event, SuccessEmbed(MsgBannerEnabled), false)
	}
	return RespondEmbed(event, SuccessEmbed(MsgBannerDisabled), false)
}

func bannerInterval(event *events.ApplicationCommandInteractionCreate) error {
	guildID, err := requireGuildID(event)
	if err != nil {
		return err
	}
	if err := requireBannerAccess(event.Client(), guildID, event.Member()); err != nil {
		return err
	}

	minutes := event.SlashCommandInteractionData().Int("minutes")
	if minutes < MinBannerInterval {
		return Failuref(MsgBannerIntervalMin, MinBannerInterval)
	}

	if err := SetBannerInterval(AppContext, guildID, minutes); err != nil {
		return err
	}
	return RespondEmbed(event, SuccessEmbed(MsgBannerIntervalSet, minutes), false)
}

// ===========================
// Banner browser
// ===========================

// bannerLabel shortens a banner URL for select menu options and listings.
func bannerLabel(url string) string {
	label := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	return Truncate(label, 60)
}

// buildBannerPage renders one page of the banner browser. Pages are stateless:
// the nav and select custom IDs carry the guild and page so any instance can
// serve the interaction.
func buildBannerPage(guildID snowflake.ID, banners []*Banner, page int) (discord.Embed, []discord.LayoutComponent) {
	pages := (len(banners) + bannerPageSize - 1) / bannerPageSize
	if pages == 0 {
		pages = 1
	}
	page = min(max(page, 0), pages-1)
	start := page * bannerPageSize
	end := min(start+bannerPageSize, len(banners))

	var body strings.Builder
	setOptions := make([]discord.StringSelectMenuOption, 0, end-start)
	removeOptions := make([]discord.StringSelectMenuOption, 0, end-start)
	for i := start; i < end; i++ {
		b := banners[i]
		fmt.Fprintf(&body, "`#%02d` [%s](%s) added by <@%s>\n", i+1, bannerLabel(b.URL), b.URL, b.UserID)

		value := strconv.FormatInt(b.ID, 10)
		label := fmt.Sprintf("#%02d %s", i+1, bannerLabel(b.URL))
		setOptions = append(setOptions, discord.NewStringSelectMenuOption(Truncate(label, 100), value))
		removeOptions = append(removeOptions, discord.NewStringSelectMenuOption(Truncate(label, 100), value))
	}

	embed := discord.Embed{
		Title:       "Banner Rotation",
		Description: body.String(),
		Color:       ColorMessage,
		Footer: &discord.EmbedFooter{
			Text: fmt.Sprintf("Page %d/%d • %d banner(s)", page+1, pages, len(banners)),
		},
	}

	prefix := fmt.Sprintf("banner:%s", guildID)
	pageTag := strconv.Itoa(page)
	components := []discord.LayoutComponent{
		discord.NewActionRow(
			discord.NewStringSelectMenu(prefix+":set:"+pageTag, "Set as the server banner…", setOptions...),
		),
		discord.NewActionRow(
			discord.NewStringSelectMenu(prefix+":remove:"+pageTag, "Remove from the rotation…", removeOptions...),
		),
		discord.NewActionRow(
			discord.NewButton(discord.ButtonStyleSecondary, "Prev", prefix+":page:"+strconv.Itoa(page-1), "", 0).
				WithDisabled(page == 0),
			discord.NewButton(discord.ButtonStyleSecondary, "Next", prefix+":page:"+strconv.Itoa(page+1), "", 0).
				WithDisabled(page >= pages-1),
		),
	}
	return embed, components
}

func findBannerByID(banners []*Banner, id int64) *Banner {
	for _, b := range banners {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func updateBannerBrowser(event *events.ComponentInteractionCreate, guildID snowflake.ID, page int) {
	banners, err := GetBanners(AppContext, guildID)
	if err != nil || len(banners) == 0 {
		embeds := []discord.Embed{MessageEmbed(MsgBannerNoBanners)}
		components := []discord.LayoutComponent{}
		_ = event.UpdateMessage(discord.MessageUpdate{Embeds: &embeds, Components: &components})
		return
	}
	embed, components := buildBannerPage(guildID, banners, page)
	embeds := []discord.Embed{embed}
	_ = event.UpdateMessage(discord.MessageUpdate{Embeds: &embeds, Components: &components})
}

// onBannerComponent handles the browser components. Custom IDs have the form
// banner:<guildID>:<action>:<page>.
func onBannerComponent(event *events.ComponentInteractionCreate) {
	parts := strings.Split(event.Data.CustomID(), ":")
	if len(parts) != 4 {
		_ = event.DeferUpdateMessage()
		return
	}
	guildID, err := snowflake.Parse(parts[1])
	if err != nil {
		_ = event.DeferUpdateMessage()
		return
	}
	action := parts[2]
	page, _ := strconv.Atoi(parts[3])

	if err := requireBannerAccess(event.Client(), guildID, event.Member()); err != nil {
		if failure, ok := IsFailure(err); ok {
			_ = RespondEmbed(event, FailureEmbed("%s", failure.Message), true)
			return
		}
		_ = event.DeferUpdateMessage()
		return
	}

	switch action {
	case "page":
		updateBannerBrowser(event, guildID, page)
	case "set":
		onBannerSet(event, guildID)
	case "remove":
		onBannerRemove(event, guildID, page)
	default:
		_ = event.DeferUpdateMessage()
	}
}

func selectedBanner(event *events.ComponentInteractionCreate, guildID snowflake.ID) (*Banner, error) {
	data, ok := event.Data.(discord.StringSelectMenuInteractionData)
	if !ok || len(data.Values) == 0 {
		return nil, &Failure{Message: MsgBannerInvalidChoice}
	}
	id, err := strconv.ParseInt(data.Values[0], 10, 64)
	if err != nil {
		return nil, &Failure{Message: MsgBannerInvalidChoice}
	}

	banners, err := GetBanners(AppContext, guildID)
	if err != nil {
		return nil, err
	}
	banner := findBannerByID(banners, id)
	if banner == nil {
		return nil, &Failure{Message: MsgBannerInvalidChoice}
	}
	return banner, nil
}

// onBannerSet applies the selected banner immediately. The fetch and PATCH can
// take a while, so the update is deferred and the browser message is replaced
// with the result.
func onBannerSet(event *events.ComponentInteractionCreate, guildID snowflake.ID) {
	banner, err := selectedBanner(event, guildID)
	if err != nil {
		if failure, ok := IsFailure(err); ok {
			_ = RespondEmbed(event, FailureEmbed("%s", failure.Message), true)
			return
		}
		_ = event.DeferUpdateMessage()
		return
	}

	if err := event.DeferUpdateMessage(); err != nil {
		return
	}

	result := SuccessEmbed(MsgBannerSet)
	if err := setGuildBanner(AppContext, event.Client(), guildID, banner.URL); err != nil {
		switch {
		case errors.Is(err, errBannerGone):
			_, _ = DeleteBanner(AppContext, guildID, banner.URL)
			LogBanner(MsgBannerImageGoneLog, banner.URL, guildID)
			result = FailureEmbed(MsgBannerImageGone)
		default:
			if failure, ok := IsFailure(err); ok {
				result = FailureEmbed("%s", failure.Message)
			} else {
				LogWarn(MsgBannerRotateFail, guildID, err)
				result = FailureEmbed(MsgBannerUnreachable)
			}
		}
	} else {
		_ = TouchBannerLastChange(AppContext, guildID)
	}
	_ = EditResponseEmbed(event.Client(), event.ApplicationID(), event.Token(), result)
}

func onBannerRemove(event *events.ComponentInteractionCreate, guildID snowflake.ID, page int) {
	banner, err := selectedBanner(event, guildID)
	if err != nil {
		if failure, ok := IsFailure(err); ok {
			_ = RespondEmbed(event, FailureEmbed("%s", failure.Message), true)
			return
		}
		_ = event.DeferUpdateMessage()
		return
	}

	if _, err := DeleteBanner(AppContext, guildID, banner.URL); err != nil {
		_ = event.DeferUpdateMessage()
		return
	}
	updateBannerBrowser(event, guildID, page)
	_ = FollowupEmbed(event.Client(), event.ApplicationID(), event.Token(), SuccessEmbed(MsgBannerRemoved), true)
}

// ===========================
// Rotation daemon
// ===========================

func startBannerRotator(ctx context.Context) (bool, func(), func()) {
	stop := make(chan struct{})
	run := func() {
		ticker := time.NewTicker(bannerSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				sweepBannerRotations(ctx)
			}
		}
	}
	return true, run, func() { close(stop) }
}

// sweepBannerRotations rotates every guild whose interval has elapsed since
// its last banner change.
func sweepBannerRotations(ctx context.Context) {
	client := BotClient
	if client == nil {
		return
	}
	guildIDs, err := GetExpiredBannerRotations(ctx)
	if err != nil {
		LogWarn(MsgBannerSweepFail, err)
		return
	}
	for _, guildID := range guildIDs {
		if err := bannerEditLimiter.Wait(ctx); err != nil {
			return
		}
		rotateGuildBanner(ctx, client, guildID)
	}
}

func rotateGuildBanner(ctx context.Context, client *bot.Client, guildID snowflake.ID) {
	banners, err := GetBanners(ctx, guildID)
	if err != nil {
		LogWarn(MsgBannerRotateFail, guildID, err)
		return
	}
	if len(banners) == 0 {
		if err := SetBannerEnabled(ctx, guildID, false); err == nil {
			LogBanner(MsgBannerAutoDisabled, guildID)
		}
		return
	}
	// A guild can lose the banner feature when boosts lapse. Leave the
	// rotation configured and pick it back up once the feature returns.
	if !guildSupportsBanner(client, guildID) {
		return
	}

	pick := banners[rand.Intn(len(banners))]
	if err := setGuildBanner(ctx, client, guildID, pick.URL); err != nil {
		if errors.Is(err, errBannerGone) {
			_, _ = DeleteBanner(ctx, guildID, pick.URL)
			LogBanner(MsgBannerImageGoneLog, pick.URL, guildID)
			return
		}
		LogWarn(MsgBannerRotateFail, guildID, err)
		return
	}

	if err := TouchBannerLastChange(ctx, guildID); err != nil {
		LogWarn(MsgBannerRotateFail, guildID, err)
		return
	}
	LogBanner(MsgBannerRotated, guildID)
}
