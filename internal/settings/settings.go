// Package settings resolves and updates per-guild response
// preferences with create-or-update semantics.
package settings

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ostrago/gptcord/internal/models"
	"github.com/ostrago/gptcord/internal/storage"
)

type Resolver struct {
	store  storage.Store
	logger *zap.Logger
}

func NewResolver(store storage.Store, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve returns the guild's settings record, or (nil, nil) if the
// guild has never been written. Reads never create a record.
func (r *Resolver) Resolve(ctx context.Context, guildID string) (*models.GuildSettings, error) {
	settings, err := r.store.GetGuildSettings(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("settings lookup for guild %s: %w", guildID, err)
	}
	return settings, nil
}

// Upsert merges update over the guild's existing record, creating a
// defaults-populated record first if none exists. The merge is
// field-by-field; fields absent from the update keep their stored
// values.
func (r *Resolver) Upsert(ctx context.Context, guildID string, update models.SettingsUpdate) (*models.GuildSettings, error) {
	settings, err := r.store.GetGuildSettings(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("settings lookup for guild %s: %w", guildID, err)
	}
	if settings == nil {
		settings = models.DefaultGuildSettings(guildID)
		r.logger.Info("creating guild settings",
			zap.String("guild_id", guildID))
	}

	settings.Merge(update)

	if err := r.store.SaveGuildSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("settings persistence for guild %s: %w", guildID, err)
	}
	return settings, nil
}
