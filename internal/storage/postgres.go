package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/lib/pq"

	"github.com/ostrago/gptcord/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetUserByDiscordID(ctx context.Context, discordID string) (*models.User, error) {
	query := `
		SELECT id, discord_id, username, created_at
		FROM users
		WHERE discord_id = $1`

	user := &models.User{}
	err := s.db.QueryRowContext(ctx, query, discordID).Scan(
		&user.ID,
		&user.DiscordID,
		&user.Username,
		&user.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %w", err)
	}
	return user, nil
}

func (s *PostgresStorage) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, discord_id, username)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query, user.ID, user.DiscordID, user.Username).Scan(&user.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetConversation(ctx context.Context, channelID, userID string) (*models.Conversation, error) {
	query := `
		SELECT id, user_id, channel_id, guild_id, created_at
		FROM conversations
		WHERE channel_id = $1 AND user_id = $2`

	conv := &models.Conversation{}
	err := s.db.QueryRowContext(ctx, query, channelID, userID).Scan(
		&conv.ID,
		&conv.UserID,
		&conv.ChannelID,
		&conv.GuildID,
		&conv.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying conversation: %w", err)
	}
	return conv, nil
}

func (s *PostgresStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	query := `
		INSERT INTO conversations (id, user_id, channel_id, guild_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query, conv.ID, conv.UserID, conv.ChannelID, conv.GuildID).Scan(&conv.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating conversation: %w", err)
	}
	return nil
}

func (s *PostgresStorage) CreateMessage(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, role, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query, msg.ID, msg.ConversationID, string(msg.Role), msg.Content).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating message: %w", err)
	}
	return nil
}

func (s *PostgresStorage) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, created_at
		FROM (
			SELECT seq, id, conversation_id, role, content, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) recent
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
		err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		msg.Role = models.Role(role)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *PostgresStorage) GetGuildSettings(ctx context.Context, guildID string) (*models.GuildSettings, error) {
	query := `
		SELECT guild_id, response_length, personality, code_format,
		       allowed_channels, channel_mode, slash_mode, activated_channels, updated_at
		FROM guild_settings
		WHERE guild_id = $1`

	settings := &models.GuildSettings{}
	var slashMode string
	err := s.db.QueryRowContext(ctx, query, guildID).Scan(
		&settings.GuildID,
		&settings.ResponseLength,
		&settings.Personality,
		&settings.CodeFormat,
		pq.Array(&settings.AllowedChannels),
		&settings.ChannelMode,
		&slashMode,
		pq.Array(&settings.ActivatedChannels),
		&settings.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying guild settings: %w", err)
	}
	settings.SlashMode = models.SlashMode(slashMode)
	return settings, nil
}

func (s *PostgresStorage) SaveGuildSettings(ctx context.Context, settings *models.GuildSettings) error {
	query := `
		INSERT INTO guild_settings
			(guild_id, response_length, personality, code_format,
			 allowed_channels, channel_mode, slash_mode, activated_channels, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (guild_id) DO UPDATE SET
			response_length    = EXCLUDED.response_length,
			personality        = EXCLUDED.personality,
			code_format        = EXCLUDED.code_format,
			allowed_channels   = EXCLUDED.allowed_channels,
			channel_mode       = EXCLUDED.channel_mode,
			slash_mode         = EXCLUDED.slash_mode,
			activated_channels = EXCLUDED.activated_channels,
			updated_at         = now()`

	_, err := s.db.ExecContext(ctx, query,
		settings.GuildID,
		settings.ResponseLength,
		settings.Personality,
		settings.CodeFormat,
		pq.Array(settings.AllowedChannels),
		settings.ChannelMode,
		string(settings.SlashMode),
		pq.Array(settings.ActivatedChannels),
	)
	if err != nil {
		return fmt.Errorf("error saving guild settings: %w", err)
	}
	return nil
}

func (s *PostgresStorage) AddStats(ctx context.Context, deltaMessages, deltaAPICalls int64) error {
	// Increment in the database rather than read-modify-write so
	// concurrent commands cannot lose counts.
	query := `
		INSERT INTO bot_stats (id, total_messages, api_calls)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			total_messages = bot_stats.total_messages + EXCLUDED.total_messages,
			api_calls      = bot_stats.api_calls + EXCLUDED.api_calls`

	if _, err := s.db.ExecContext(ctx, query, deltaMessages, deltaAPICalls); err != nil {
		return fmt.Errorf("error updating stats: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetStats(ctx context.Context) (*models.BotStats, error) {
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

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
