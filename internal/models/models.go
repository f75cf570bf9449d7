package models

import "time"

// User is a Discord account the bot has seen at least once. Records are
// created lazily on the first command from an unseen Discord id and are
// never mutated afterwards.
type User struct {
	ID        string    `json:"id"`
	DiscordID string    `json:"discord_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation groups the messages exchanged with one user in one
// channel. GuildID is empty for direct messages and is recorded only
// when the conversation is first created.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ChannelID string    `json:"channel_id"`
	GuildID   string    `json:"guild_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a conversation. Messages are append-only and
// ordered by creation time.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// BotStats is a process-wide counter record, persisted across restarts.
type BotStats struct {
	TotalMessages int64 `json:"total_messages"`
	APICalls      int64 `json:"api_calls"`
}
