package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ostrago/gptcord/internal/bot"
	"github.com/ostrago/gptcord/internal/conversation"
	"github.com/ostrago/gptcord/internal/generator"
	"github.com/ostrago/gptcord/internal/settings"
	"github.com/ostrago/gptcord/internal/storage"
	"github.com/ostrago/gptcord/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Store
	switch cfg.Storage.Backend {
	case "memory":
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	case "postgres":
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	case "sqlite":
		logger.Info("Using SQLite storage", zap.String("path", cfg.Storage.SQLitePath))
		store, err = storage.NewSQLiteStorage(cfg.Storage.SQLitePath)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	default:
		logger.Fatal("Unknown storage backend", zap.String("backend", cfg.Storage.Backend))
	}
	defer store.Close()

	// Wire the command pipeline
	gen := generator.NewOpenAIGenerator(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
		logger,
	)
	dispatcher := bot.NewDispatcher(
		conversation.NewService(store, logger),
		settings.NewResolver(store, logger),
		gen,
		cfg.Bot.HistoryWindow,
		cfg.Bot.ChunkLimit,
		logger,
	)

	// Initialize bot
	b, err := bot.New(cfg.Discord.Token, dispatcher, cfg.Discord.GuildID, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// Start the bot and block until interrupted
	if err := b.Start(); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	if err := b.Stop(); err != nil {
		logger.Error("Failed to close session", zap.Error(err))
	}
}
