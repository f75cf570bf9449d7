package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// applicationCommands is the slash-command schema registered on
// startup. The prompt and mode options are required at the schema
// level, so handlers treat a missing value as an internal error.
var applicationCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "ai",
		Description: "Ask the AI a question",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "prompt",
				Description: "What do you want to ask?",
				Required:    true,
			},
		},
	},
	{
		Name:        "aimode",
		Description: "Set how the bot responds to slash commands in this server",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "mode",
				Description: "Slash command mode",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "Disabled", Value: "disabled"},
					{Name: "Enabled", Value: "enabled"},
					{Name: "Required", Value: "required"},
					{Name: "Activated channels only", Value: "activated"},
				},
			},
		},
	},
	{
		Name:        "activate",
		Description: "Let the bot respond freely in this channel",
	},
	{
		Name:        "deactivate",
		Description: "Stop the bot from responding freely in this channel",
	},
}

// Bot owns the Discord session and forwards interactions to the
// dispatcher.
type Bot struct {
	session    *discordgo.Session
	dispatcher *Dispatcher
	guildID    string
	logger     *zap.Logger
}

// New creates the bot. guildID scopes command registration to one
// guild for fast iteration; empty registers commands globally.
func New(token string, dispatcher *Dispatcher, guildID string, logger *zap.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	return &Bot{
		session:    session,
		dispatcher: dispatcher,
		guildID:    guildID,
		logger:     logger,
	}, nil
}

// Start opens the gateway connection and registers the slash commands.
func (b *Bot) Start() error {
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.logger.Info("Logged in",
			zap.String("username", s.State.User.Username))
	})
	b.session.AddHandler(b.handleInteraction)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}

	for _, cmd := range applicationCommands {
		if _, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, b.guildID, cmd); err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
	}

	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	return b.session.Close()
}

// handleInteraction adapts an InteractionCreate event to the
// transport-neutral command the dispatcher consumes. discordgo
// dispatches each handler invocation on its own goroutine, so slow
// generation calls don't block other commands.
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	options := make(map[string]string, len(data.Options))
	for _, opt := range data.Options {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			options[opt.Name] = opt.StringValue()
		}
	}

	// Guild commands carry the invoker in Member; DMs carry it in User.
	user := i.User
	if i.Member != nil {
		user = i.Member.User
	}
	if user == nil {
		b.logger.Warn("Interaction without a user",
			zap.String("command", data.Name))
		return
	}

	cmd := Command{
		Name:      data.Name,
		Options:   options,
		UserID:    user.ID,
		Username:  user.Username,
		ChannelID: i.ChannelID,
		GuildID:   i.GuildID,
	}

	b.dispatcher.Handle(context.Background(), cmd, newInteractionReplier(s, i.Interaction))
}
