package storage

import (
	"context"
	"sync"
	"time"

	"github.com/ostrago/gptcord/internal/models"
)

// MemoryStorage keeps everything in process memory. Used by tests and
// by the storage.backend=memory configuration.
type MemoryStorage struct {
	mu            sync.RWMutex
	users         map[string]*models.User          // keyed by Discord id
	conversations map[convKey]*models.Conversation // keyed by (channel, user)
	messages      map[string][]*models.Message     // keyed by conversation id, append order
	settings      map[string]*models.GuildSettings // keyed by guild id
	stats         models.BotStats
}

type convKey struct {
	channelID string
	userID    string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:         make(map[string]*models.User),
		conversations: make(map[convKey]*models.Conversation),
		messages:      make(map[string][]*models.Message),
		settings:      make(map[string]*models.GuildSettings),
	}
}

func (s *MemoryStorage) GetUserByDiscordID(ctx context.Context, discordID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, exists := s.users[discordID]; exists {
		copied := *user
		return &copied, nil
	}
	return nil, nil
}

func (s *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	copied := *user
	s.users[user.DiscordID] = &copied
	return nil
}

func (s *MemoryStorage) GetConversation(ctx context.Context, channelID, userID string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if conv, exists := s.conversations[convKey{channelID, userID}]; exists {
		copied := *conv
		return &copied, nil
	}
	return nil, nil
}

func (s *MemoryStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	copied := *conv
	s.conversations[convKey{conv.ChannelID, conv.UserID}] = &copied
	return nil
}

func (s *MemoryStorage) CreateMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	copied := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], &copied)
	return nil
}

func (s *MemoryStorage) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	result := make([]*models.Message, 0, len(msgs))
	for _, m := range msgs {
		copied := *m
		result = append(result, &copied)
	}
	return result, nil
}

func (s *MemoryStorage) GetGuildSettings(ctx context.Context, guildID string) (*models.GuildSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if settings, exists := s.settings[guildID]; exists {
		copied := *settings
		copied.AllowedChannels = append([]string(nil), settings.AllowedChannels...)
		copied.ActivatedChannels = append([]string(nil), settings.ActivatedChannels...)
		return &copied, nil
	}
	return nil, nil
}

func (s *MemoryStorage) SaveGuildSettings(ctx context.Context, settings *models.GuildSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.UpdatedAt = time.Now().UTC()
	copied := *settings
	copied.AllowedChannels = append([]string(nil), settings.AllowedChannels...)
	copied.ActivatedChannels = append([]string(nil), settings.ActivatedChannels...)
	s.settings[settings.GuildID] = &copied
	return nil
}

func (s *MemoryStorage) AddStats(ctx context.Context, deltaMessages, deltaAPICalls int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalMessages += deltaMessages
	s.stats.APICalls += deltaAPICalls
	return nil
}

func (s *MemoryStorage) GetStats(ctx context.Context) (*models.BotStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := s.stats
	return &copied, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
