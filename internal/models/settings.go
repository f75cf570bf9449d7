package models

import (
	"fmt"
	"time"
)

// SlashMode controls how the bot reacts to slash commands in a guild.
type SlashMode string

const (
	SlashDisabled  SlashMode = "disabled"
	SlashEnabled   SlashMode = "enabled"
	SlashRequired  SlashMode = "required"
	SlashActivated SlashMode = "activated"
)

// ParseSlashMode converts a raw option value into a SlashMode.
func ParseSlashMode(s string) (SlashMode, error) {
	switch SlashMode(s) {
	case SlashDisabled, SlashEnabled, SlashRequired, SlashActivated:
		return SlashMode(s), nil
	}
	return "", fmt.Errorf("unknown slash command mode %q", s)
}

// DMGuildID is the sentinel settings key used for direct-message
// channels, which have no guild of their own.
const DMGuildID = "dm"

// GuildSettings holds a guild's response preferences. One record per
// guild, created with defaults on first write.
type GuildSettings struct {
	GuildID           string    `json:"guild_id"`
	ResponseLength    string    `json:"response_length"`
	Personality       string    `json:"personality"`
	CodeFormat        bool      `json:"code_format"`
	AllowedChannels   []string  `json:"allowed_channels"`
	ChannelMode       string    `json:"channel_mode"`
	SlashMode         SlashMode `json:"slash_mode"`
	ActivatedChannels []string  `json:"activated_channels"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DefaultGuildSettings returns a settings record populated with the
// documented defaults for every preference field.
func DefaultGuildSettings(guildID string) *GuildSettings {
	return &GuildSettings{
		GuildID:           guildID,
		ResponseLength:    "medium",
		Personality:       "helpful",
		CodeFormat:        true,
		AllowedChannels:   []string{},
		ChannelMode:       "all",
		SlashMode:         SlashEnabled,
		ActivatedChannels: []string{},
	}
}

// SettingsUpdate is a partial settings write. A nil field means
// "inherit the existing value"; merging is always field-by-field,
// never a whole-record replace.
type SettingsUpdate struct {
	ResponseLength    *string
	Personality       *string
	CodeFormat        *bool
	AllowedChannels   []string
	ChannelMode       *string
	SlashMode         *SlashMode
	ActivatedChannels []string
}

// Merge applies the set fields of u over s, leaving unset fields
// untouched.
func (s *GuildSettings) Merge(u SettingsUpdate) {
	if u.ResponseLength != nil {
		s.ResponseLength = *u.ResponseLength
	}
	if u.Personality != nil {
		s.Personality = *u.Personality
	}
	if u.CodeFormat != nil {
		s.CodeFormat = *u.CodeFormat
	}
	if u.AllowedChannels != nil {
		s.AllowedChannels = u.AllowedChannels
	}
	if u.ChannelMode != nil {
		s.ChannelMode = *u.ChannelMode
	}
	if u.SlashMode != nil {
		s.SlashMode = *u.SlashMode
	}
	if u.ActivatedChannels != nil {
		s.ActivatedChannels = u.ActivatedChannels
	}
}
