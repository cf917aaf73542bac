package storage

import "github.com/keshon/memoria/internal/config"

// Settings returns the guild's agent settings, falling back to defaults.
func (s *Storage) Settings(guildID string) (config.GuildSettings, error) {
	record, err := s.getGuildRecord(guildID)
	if err != nil {
		return config.GuildSettings{}, err
	}
	if record.Settings == nil {
		return config.DefaultGuildSettings(), nil
	}
	settings := *record.Settings
	settings.Normalize()
	return settings, nil
}

// UpdateSettings applies fn to the guild settings and persists the result.
func (s *Storage) UpdateSettings(guildID string, fn func(g *config.GuildSettings) error) error {
	return s.updateGuildRecord(guildID, func(r *Record) error {
		if r.Settings == nil {
			def := config.DefaultGuildSettings()
			r.Settings = &def
		}
		r.Settings.Normalize()
		return fn(r.Settings)
	})
}
