package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
)

// PromptTimeout is how long an interactive question stays answerable.
const PromptTimeout = 3 * time.Minute

// Prompt suspends a command flow on an interactive question to the invoking
// user. Cancellation and timeouts surface as user-facing failures.
type Prompt interface {
	// Confirm asks a yes/no question. It returns nil when the user confirms
	// and a *Failure when they cancel or let the prompt expire.
	Confirm(ctx context.Context, question string) error
	// Choose asks the user to pick one of the given options and returns the
	// chosen option value.
	Choose(ctx context.Context, question string, options []PromptOption) (string, error)
}

type PromptOption struct {
	Label       string
	Value       string
	Description string
}

// ===========================
// Pending prompt registry
// ===========================

type pendingPrompt struct {
	userID snowflake.ID
	result chan string
}

var promptMu sync.Mutex
var pendingPrompts = map[string]*pendingPrompt{}

func init() {
	RegisterComponentHandler("prompt:", onPromptComponent)
}

func newPromptNonce() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func onPromptComponent(event *events.ComponentInteractionCreate) {
	parts := strings.Split(event.Data.CustomID(), ":")
	if len(parts) < 2 {
		return
	}
	nonce := parts[1]

	promptMu.Lock()
	pend := pendingPrompts[nonce]
	promptMu.Unlock()

	if pend == nil {
		_ = event.DeferUpdateMessage()
		return
	}
	if event.User().ID != pend.userID {
		_ = RespondEmbed(event, FailureEmbed(MsgFailPromptNotYours), true)
		return
	}

	value := ""
	if len(parts) >= 3 {
		value = parts[2]
	} else if data, ok := event.Data.(discord.StringSelectMenuInteractionData); ok && len(data.Values) > 0 {
		value = data.Values[0]
	}

	select {
	case pend.result <- value:
	default:
	}
	_ = event.DeferUpdateMessage()
}

// ===========================
// Interaction-backed prompt
// ===========================

// InteractionPrompt renders questions by editing the original (deferred)
// interaction response. Callers must have deferred the interaction first.
type InteractionPrompt struct {
	client        *bot.Client
	applicationID snowflake.ID
	token         string
	userID        snowflake.ID
}

func NewInteractionPrompt(event *events.ApplicationCommandInteractionCreate) *InteractionPrompt {
	return &InteractionPrompt{
		client:        event.Client(),
		applicationID: event.ApplicationID(),
		token:         event.Token(),
		userID:        event.User().ID,
	}
}

func (p *InteractionPrompt) Confirm(ctx context.Context, question string) error {
	nonce := newPromptNonce()
	components := []discord.LayoutComponent{
		discord.NewActionRow(
			discord.NewButton(discord.ButtonStyleSuccess, "Confirm", "prompt:"+nonce+":confirm", "", 0),
			discord.NewButton(discord.ButtonStyleSecondary, "Cancel", "prompt:"+nonce+":cancel", "", 0),
		),
	}

	value, err := p.ask(ctx, MessageEmbed("%s", question), components, nonce)
	if err != nil {
		return err
	}
	if value != "confirm" {
		return &Failure{Message: MsgFailInteractionCancel}
	}
	return nil
}

func (p *InteractionPrompt) Choose(ctx context.Context, question string, options []PromptOption) (string, error) {
	nonce := newPromptNonce()

	menuOptions := make([]discord.StringSelectMenuOption, 0, len(options))
	for _, opt := range options {
		menuOption := discord.NewStringSelectMenuOption(opt.Label, opt.Value)
		if opt.Description != "" {
			menuOption = menuOption.WithDescription(opt.Description)
		}
		menuOptions = append(menuOptions, menuOption)
	}

	components := []discord.LayoutComponent{
		discord.NewActionRow(
			discord.NewStringSelectMenu("prompt:"+nonce, "Make a selection...", menuOptions...),
		),
		discord.NewActionRow(
			discord.NewButton(discord.ButtonStyleSecondary, "Cancel", "prompt:"+nonce+":cancel", "", 0),
		),
	}

	return p.ask(ctx, MessageEmbed("%s", question), components, nonce)
}

// ask renders the question, waits for an answer and strips the components
// again. Cancel, timeout and context expiry all come back as errors.
func (p *InteractionPrompt) ask(ctx context.Context, embed discord.Embed, components []discord.LayoutComponent, nonce string) (string, error) {
	pend := &pendingPrompt{
		userID: p.userID,
		result: make(chan string, 1),
	}
	promptMu.Lock()
	pendingPrompts[nonce] = pend
	promptMu.Unlock()
	defer func() {
		promptMu.Lock()
		delete(pendingPrompts, nonce)
		promptMu.Unlock()
	}()

	embeds := []discord.Embed{embed}
	if _, err := p.client.Rest.UpdateInteractionResponse(p.applicationID, p.token, discord.MessageUpdate{
		Embeds:     &embeds,
		Components: &components,
	}); err != nil {
		return "", err
	}

	timer := time.NewTimer(PromptTimeout)
	defer timer.Stop()

	select {
	case value := <-pend.result:
		p.stripComponents()
		if value == "cancel" {
			return "", &Failure{Message: MsgFailInteractionCancel}
		}
		return value, nil
	case <-timer.C:
		p.stripComponents()
		return "", &Failure{Message: MsgFailInteractionTimeout}
	case <-ctx.Done():
		p.stripComponents()
		return "", ctx.Err()
	}
}

func (p *InteractionPrompt) stripComponents() {
	components := []discord.LayoutComponent{}
	_, _ = p.client.Rest.UpdateInteractionResponse(p.applicationID, p.token, discord.MessageUpdate{
		Components: &components,
	})
}
