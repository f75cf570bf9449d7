package bot

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ostrago/gptcord/internal/conversation"
	"github.com/ostrago/gptcord/internal/generator"
	"github.com/ostrago/gptcord/internal/models"
	"github.com/ostrago/gptcord/internal/settings"
	"github.com/ostrago/gptcord/pkg/splitter"
)

// Command is a transport-neutral slash-command invocation.
type Command struct {
	Name      string
	Options   map[string]string
	UserID    string // platform identity of the invoker
	Username  string
	ChannelID string
	GuildID   string // empty for direct messages
}

// ReplyState tracks where an interaction is in its reply lifecycle.
type ReplyState int

const (
	// StateReceived: nothing sent yet; Reply or Defer are legal.
	StateReceived ReplyState = iota
	// StateDeferred: placeholder acknowledged; only Edit is legal.
	StateDeferred
	// StateReplied: primary reply delivered; only FollowUp is legal.
	StateReplied
)

// Replier delivers responses for one interaction. Implementations
// enforce the reply state machine: replying twice, or editing without
// a prior defer, are errors.
type Replier interface {
	Defer() error
	Reply(content string, ephemeral bool) error
	Edit(content string) error
	FollowUp(content string) error
	State() ReplyState
}

const (
	genericApology    = "Sorry, something went wrong while handling your command. Please try again."
	generationApology = "Sorry, I ran into an error generating a response. Please try again."

	helpMessage = "I don't recognize that command. Try /ai to ask me something, " +
		"/aimode to change how I respond, or /activate and /deactivate to manage channels."
)

// Dispatcher routes inbound commands to their handlers and owns the
// uniform error-recovery path.
type Dispatcher struct {
	conversations *conversation.Service
	settings      *settings.Resolver
	generator     generator.Generator
	historyWindow int
	chunkLimit    int
	logger        *zap.Logger
}

func NewDispatcher(
	conversations *conversation.Service,
	resolver *settings.Resolver,
	gen generator.Generator,
	historyWindow int,
	chunkLimit int,
	logger *zap.Logger,
) *Dispatcher {
	if historyWindow <= 0 {
		historyWindow = conversation.DefaultHistoryWindow
	}
	if chunkLimit <= 0 {
		chunkLimit = splitter.DefaultLimit
	}
	return &Dispatcher{
		conversations: conversations,
		settings:      resolver,
		generator:     gen,
		historyWindow: historyWindow,
		chunkLimit:    chunkLimit,
		logger:        logger,
	}
}

// Handle routes one command and converts any handler failure into a
// generic user-facing apology. A failure delivering the apology itself
// is logged and swallowed.
func (d *Dispatcher) Handle(ctx context.Context, cmd Command, r Replier) {
	err := d.route(ctx, cmd, r)
	if err == nil {
		return
	}

	d.logger.Error("Command failed",
		zap.Error(err),
		zap.String("command", cmd.Name),
		zap.String("user_id", cmd.UserID),
		zap.String("guild_id", cmd.GuildID))

	var sendErr error
	switch r.State() {
	case StateReceived:
		sendErr = r.Reply(genericApology, false)
	case StateDeferred:
		sendErr = r.Edit(genericApology)
	}
	if sendErr != nil {
		d.logger.Error("Failed to deliver error reply",
			zap.Error(sendErr),
			zap.String("command", cmd.Name),
			zap.String("user_id", cmd.UserID))
	}
}

func (d *Dispatcher) route(ctx context.Context, cmd Command, r Replier) error {
	switch cmd.Name {
	case "ai":
		return d.handleAsk(ctx, cmd, r)
	case "aimode":
		return d.handleMode(ctx, cmd, r)
	case "activate":
		return d.handleActivate(ctx, cmd, r)
	case "deactivate":
		return d.handleDeactivate(ctx, cmd, r)
	default:
		return r.Reply(helpMessage, true)
	}
}

func (d *Dispatcher) handleAsk(ctx context.Context, cmd Command, r Replier) error {
	prompt := cmd.Options["prompt"]
	if prompt == "" {
		// The command schema marks prompt as required, so this is an
		// internal error, not a user mistake.
		return fmt.Errorf("ask: missing required prompt option")
	}

	// Acknowledge before doing any work; generation routinely outlives
	// the interaction response deadline.
	if err := r.Defer(); err != nil {
		return fmt.Errorf("ask: defer: %w", err)
	}

	user, err := d.conversations.EnsureUser(ctx, cmd.UserID, cmd.Username)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	conv, err := d.conversations.EnsureConversation(ctx, cmd.ChannelID, user.ID, cmd.GuildID)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	if _, err := d.conversations.AppendMessage(ctx, conv.ID, models.RoleUser, prompt); err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	window, err := d.conversations.RecentHistory(ctx, conv.ID, d.historyWindow)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	// The prompt was persisted first, so the window's last entry is the
	// prompt itself; everything before it is the context.
	history := window
	if len(history) > 0 {
		history = history[:len(history)-1]
	}

	personality, length := d.stylePreferences(ctx, cmd.GuildID)

	answer, err := d.generator.Generate(ctx, prompt, history, personality, length)
	if err == nil && strings.TrimSpace(answer) == "" {
		// Discord rejects empty message content, so a blank completion
		// is as undeliverable as a failed one.
		err = fmt.Errorf("generation returned empty response")
	}
	if err != nil {
		d.logger.Error("Generation failed",
			zap.Error(err),
			zap.String("user_id", cmd.UserID),
			zap.String("conversation_id", conv.ID))
		if editErr := r.Edit(generationApology); editErr != nil {
			d.logger.Error("Failed to deliver generation error reply",
				zap.Error(editErr),
				zap.String("user_id", cmd.UserID))
		}
		return nil
	}

	if _, err := d.conversations.AppendMessage(ctx, conv.ID, models.RoleAssistant, answer); err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	if err := d.conversations.RecordUsage(ctx, 1, 1); err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	chunks := splitter.Split(answer, d.chunkLimit)
	if err := r.Edit(chunks[0]); err != nil {
		return fmt.Errorf("ask: edit reply: %w", err)
	}
	for _, chunk := range chunks[1:] {
		if err := r.FollowUp(chunk); err != nil {
			return fmt.Errorf("ask: follow-up: %w", err)
		}
	}
	return nil
}

// stylePreferences reads the guild's personality and length hints,
// falling back to defaults when the guild has no settings or the read
// fails. A failed read must not abort a response that can still be
// generated.
func (d *Dispatcher) stylePreferences(ctx context.Context, guildID string) (personality, length string) {
	defaults := models.DefaultGuildSettings(settingsKey(guildID))
	gs, err := d.settings.Resolve(ctx, settingsKey(guildID))
	if err != nil {
		d.logger.Warn("Settings lookup failed, using defaults",
			zap.Error(err),
			zap.String("guild_id", guildID))
		return defaults.Personality, defaults.ResponseLength
	}
	if gs == nil {
		return defaults.Personality, defaults.ResponseLength
	}
	return gs.Personality, gs.ResponseLength
}

func (d *Dispatcher) handleMode(ctx context.Context, cmd Command, r Replier) error {
	mode, err := models.ParseSlashMode(cmd.Options["mode"])
	if err != nil {
		return fmt.Errorf("mode: %w", err)
	}

	if _, err := d.settings.Upsert(ctx, settingsKey(cmd.GuildID), models.SettingsUpdate{
		SlashMode: &mode,
	}); err != nil {
		return fmt.Errorf("mode: %w", err)
	}

	return r.Reply(modeDescription(mode), true)
}

func (d *Dispatcher) handleActivate(ctx context.Context, cmd Command, r Replier) error {
	existing, err := d.settings.Resolve(ctx, settingsKey(cmd.GuildID))
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}

	var channels []string
	if existing != nil {
		channels = existing.ActivatedChannels
	}
	channels = addChannel(channels, cmd.ChannelID)

	mode := models.SlashActivated
	if _, err := d.settings.Upsert(ctx, settingsKey(cmd.GuildID), models.SettingsUpdate{
		SlashMode:         &mode,
		ActivatedChannels: channels,
	}); err != nil {
		return fmt.Errorf("activate: %w", err)
	}

	return r.Reply("This channel is now activated. I'll respond here without being summoned.", true)
}

func (d *Dispatcher) handleDeactivate(ctx context.Context, cmd Command, r Replier) error {
	existing, err := d.settings.Resolve(ctx, settingsKey(cmd.GuildID))
	if err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	if existing == nil {
		return r.Reply("No settings found for this server, so there's nothing to deactivate.", true)
	}

	mode := models.SlashActivated
	if _, err := d.settings.Upsert(ctx, settingsKey(cmd.GuildID), models.SettingsUpdate{
		SlashMode:         &mode,
		ActivatedChannels: removeChannel(existing.ActivatedChannels, cmd.ChannelID),
	}); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}

	return r.Reply("This channel is no longer activated.", true)
}

// settingsKey maps a direct-message command (no guild) to the DM
// sentinel settings record.
func settingsKey(guildID string) string {
	if guildID == "" {
		return models.DMGuildID
	}
	return guildID
}

func addChannel(channels []string, channelID string) []string {
	for _, c := range channels {
		if c == channelID {
			return channels
		}
	}
	return append(channels, channelID)
}

func removeChannel(channels []string, channelID string) []string {
	result := make([]string, 0, len(channels))
	for _, c := range channels {
		if c != channelID {
			result = append(result, c)
		}
	}
	return result
}

func modeDescription(mode models.SlashMode) string {
	switch mode {
	case models.SlashDisabled:
		return "Slash commands are now disabled. I won't respond to /ai in this server."
	case models.SlashEnabled:
		return "Slash commands are enabled. Use /ai to chat with me anywhere I'm allowed."
	case models.SlashRequired:
		return "Got it. I'll ONLY respond when summoned with the /ai command."
	case models.SlashActivated:
		return "I'll respond freely in activated channels. Use /activate in a channel to add it."
	}
	return "Slash command mode updated."
}
