package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/ostrago/gptcord/internal/models"
)

// sqliteSchema is executed in order on startup. All statements use
// IF NOT EXISTS so re-application is idempotent.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		discord_id TEXT NOT NULL UNIQUE,
		username   TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		guild_id   TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		UNIQUE (channel_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		id              TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		created_at      TIMESTAMP NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, seq)`,

	`CREATE TABLE IF NOT EXISTS guild_settings (
		guild_id           TEXT PRIMARY KEY,
		response_length    TEXT NOT NULL,
		personality        TEXT NOT NULL,
		code_format        INTEGER NOT NULL,
		allowed_channels   TEXT NOT NULL DEFAULT '[]',
		channel_mode       TEXT NOT NULL,
		slash_mode         TEXT NOT NULL,
		activated_channels TEXT NOT NULL DEFAULT '[]',
		updated_at         TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS bot_stats (
		id             INTEGER PRIMARY KEY CHECK (id = 1),
		total_messages INTEGER NOT NULL DEFAULT 0,
		api_calls      INTEGER NOT NULL DEFAULT 0
	)`,
}

// SQLiteStorage is a file-backed store using modernc.org/sqlite
// (pure Go, no CGO).
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// SQLite handles one writer at a time; limit the pool to one
	// connection so the PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error enabling WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error setting busy_timeout: %w", err)
	}

	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("error initializing schema: %w", err)
		}
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) GetUserByDiscordID(ctx context.Context, discordID string) (*models.User, error) {
	query := `SELECT id, discord_id, username, created_at FROM users WHERE discord_id = ?`

	user := &models.User{}
	err := s.db.QueryRowContext(ctx, query, discordID).Scan(
		&user.ID, &user.DiscordID, &user.Username, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStorage) CreateUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO users (id, discord_id, username, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, user.ID, user.DiscordID, user.Username, user.CreatedAt); err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetConversation(ctx context.Context, channelID, userID string) (*models.Conversation, error) {
	query := `
		SELECT id, user_id, channel_id, guild_id, created_at
		FROM conversations
		WHERE channel_id = ? AND user_id = ?`

	conv := &models.Conversation{}
	err := s.db.QueryRowContext(ctx, query, channelID, userID).Scan(
		&conv.ID, &conv.UserID, &conv.ChannelID, &conv.GuildID, &conv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLiteStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO conversations (id, user_id, channel_id, guild_id, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, conv.ID, conv.UserID, conv.ChannelID, conv.GuildID, conv.CreatedAt); err != nil {
		return fmt.Errorf("error creating conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.CreatedAt); err != nil {
		return fmt.Errorf("error creating message: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, created_at
		FROM (
			SELECT seq, id, conversation_id, role, content, created_at
			FROM messages
			WHERE conversation_id = ?
			ORDER BY seq DESC
			LIMIT ?
		)
		ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		var role string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		msg.Role = models.Role(role)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStorage) GetGuildSettings(ctx context.Context, guildID string) (*models.GuildSettings, error) {
	query := `
		SELECT guild_id, response_length, personality, code_format,
		       allowed_channels, channel_mode, slash_mode, activated_channels, updated_at
		FROM guild_settings
		WHERE guild_id = ?`

	settings := &models.GuildSettings{}
	var slashMode, allowed, activated string
	err := s.db.QueryRowContext(ctx, query, guildID).Scan(
		&settings.GuildID,
		&settings.ResponseLength,
		&settings.Personality,
		&settings.CodeFormat,
		&allowed,
		&settings.ChannelMode,
		&slashMode,
		&activated,
		&settings.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying guild settings: %w", err)
	}

	settings.SlashMode = models.SlashMode(slashMode)
	if err := json.Unmarshal([]byte(allowed), &settings.AllowedChannels); err != nil {
		return nil, fmt.Errorf("error decoding allowed channels: %w", err)
	}
	if err := json.Unmarshal([]byte(activated), &settings.ActivatedChannels); err != nil {
		return nil, fmt.Errorf("error decoding activated channels: %w", err)
	}
	return settings, nil
}

func (s *SQLiteStorage) SaveGuildSettings(ctx context.Context, settings *models.GuildSettings) error {
	allowed, err := json.Marshal(settings.AllowedChannels)
	if err != nil {
		return fmt.Errorf("error encoding allowed channels: %w", err)
	}
	activated, err := json.Marshal(settings.ActivatedChannels)
	if err != nil {
		return fmt.Errorf("error encoding activated channels: %w", err)
	}
	settings.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO guild_settings
			(guild_id, response_length, personality, code_format,
			 allowed_channels, channel_mode, slash_mode, activated_channels,
			 updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (guild_id) DO UPDATE SET
			response_length    = excluded.response_length,
			personality        = excluded.personality,
			code_format        = excluded.code_format,
			allowed_channels   = excluded.allowed_channels,
			channel_mode       = excluded.channel_mode,
			slash_mode         = excluded.slash_mode,
			activated_channels = excluded.activated_channels,
			updated_at         = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		settings.GuildID,
		settings.ResponseLength,
		settings.Personality,
		settings.CodeFormat,
		string(allowed),
		settings.ChannelMode,
		string(settings.SlashMode),
		string(activated),
		settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving guild settings: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) AddStats(ctx context.Context, deltaMessages, deltaAPICalls int64) error {
	query := `
		INSERT INTO bot_stats (id, total_messages, api_calls)
		VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			total_messages = total_messages + excluded.total_messages,
			api_calls      = api_calls + excluded.api_calls`

	if _, err := s.db.ExecContext(ctx, query, deltaMessages, deltaAPICalls); err != nil {
		return fmt.Errorf("error updating stats: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetStats(ctx context.Context) (*models.BotStats, error) {
	query := `SELECT total_messages, api_calls FROM bot_stats WHERE id = 1`

	stats := &models.BotStats{}
	err := s.db.QueryRowContext(ctx, query).Scan(&stats.TotalMessages, &stats.APICalls)
	if err == sql.ErrNoRows {
		return &models.BotStats{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying stats: %w", err)
	}
	return stats, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
