package storage

import (
	"context"

	"github.com/ostrago/gptcord/internal/models"
)

// Store is the persistence port shared by all drivers. Lookups return
// (nil, nil) when no record matches; errors are reserved for real
// storage failures.
type Store interface {
	GetUserByDiscordID(ctx context.Context, discordID string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error

	GetConversation(ctx context.Context, channelID, userID string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error

	CreateMessage(ctx context.Context, msg *models.Message) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)

	GetGuildSettings(ctx context.Context, guildID string) (*models.GuildSettings, error)
	SaveGuildSettings(ctx context.Context, settings *models.GuildSettings) error

	// AddStats atomically adds the deltas to the singleton stats
	// record, treating a missing record as a zero baseline.
	AddStats(ctx context.Context, deltaMessages, deltaAPICalls int64) error
	GetStats(ctx context.Context) (*models.BotStats, error)

	Close() error
}
