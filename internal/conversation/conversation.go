// Package conversation adapts the persistence port into the
// per-command operations the dispatcher needs: lazy user and
// conversation creation, append-only message history, and usage
// counters.
package conversation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ostrago/gptcord/internal/models"
	"github.com/ostrago/gptcord/internal/storage"
)

// DefaultHistoryWindow bounds how many recent messages feed the
// generation backend.
const DefaultHistoryWindow = 10

type Service struct {
	store  storage.Store
	logger *zap.Logger
}

func NewService(store storage.Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// EnsureUser returns the user record for a Discord id, creating it on
// first sight. Idempotent.
func (s *Service) EnsureUser(ctx context.Context, discordID, username string) (*models.User, error) {
	user, err := s.store.GetUserByDiscordID(ctx, discordID)
	if err != nil {
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	if user != nil {
		return user, nil
	}

	user = &models.User{
		ID:        uuid.New().String(),
		DiscordID: discordID,
		Username:  username,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("user create: %w", err)
	}
	s.logger.Info("created user",
		zap.String("user_id", user.ID),
		zap.String("discord_id", discordID))
	return user, nil
}

// EnsureConversation returns the conversation for a (channel, user)
// pair, creating it if none exists. The guild id is recorded only at
// creation time and never updated afterwards.
func (s *Service) EnsureConversation(ctx context.Context, channelID, userID, guildID string) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, channelID, userID)
	if err != nil {
		return nil, fmt.Errorf("conversation lookup: %w", err)
	}
	if conv != nil {
		return conv, nil
	}

	conv = &models.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		ChannelID: channelID,
		GuildID:   guildID,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("conversation create: %w", err)
	}
	s.logger.Info("created conversation",
		zap.String("conversation_id", conv.ID),
		zap.String("channel_id", channelID),
		zap.String("user_id", userID))
	return conv, nil
}

// AppendMessage persists a new message. Always creates, never
// deduplicates.
func (s *Service) AppendMessage(ctx context.Context, conversationID string, role models.Role, content string) (*models.Message, error) {
	msg := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("message create: %w", err)
	}
	return msg, nil
}

// RecentHistory returns the last window messages of a conversation in
// chronological order. Callers persist the new user prompt first, so
// the window includes it.
func (s *Service) RecentHistory(ctx context.Context, conversationID string, window int) ([]*models.Message, error) {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	msgs, err := s.store.RecentMessages(ctx, conversationID, window)
	if err != nil {
		return nil, fmt.Errorf("history fetch: %w", err)
	}
	return msgs, nil
}

// RecordUsage bumps the process-wide counters. The increment happens
// inside the store so concurrent commands cannot lose counts; a
// missing stats record counts from zero.
func (s *Service) RecordUsage(ctx context.Context, deltaMessages, deltaAPICalls int64) error {
	if err := s.store.AddStats(ctx, deltaMessages, deltaAPICalls); err != nil {
		return fmt.Errorf("stats update: %w", err)
	}
	return nil
}
