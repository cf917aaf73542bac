package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, falling back to system environment variables")
	}
}

// Config is the process-wide configuration read from the environment.
type Config struct {
	DiscordToken          string   `env:"DISCORD_TOKEN,required"`
	StoragePath           string   `env:"STORAGE_PATH" envDefault:"datastore.json"`
	DeveloperID           string   `env:"DEVELOPER_ID"`
	InitSlashCommands     bool     `env:"INIT_SLASH_COMMANDS" envDefault:"true"`
	DiscordGuildBlacklist []string `env:"DISCORD_GUILD_BLACKLIST" envSeparator:","`

	OpenAIKey      string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL  string `env:"OPENAI_BASE_URL"`
	SerperKey      string `env:"SERPER_API_KEY"`
	WolframAppID   string `env:"WOLFRAMALPHA_APPID"`
	TagGroupsPath  string `env:"BOORU_TAG_GROUPS"`
	ImageTokenCost int    `env:"IMAGE_TOKEN_COST" envDefault:"425"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"20"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
}

// New parses the environment into a Config.
func New() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// Credentials returns the (service, key) secrets seeded from the environment.
func (c *Config) Credentials() map[string]map[string]string {
	seed := map[string]map[string]string{}
	put := func(service, key, value string) {
		if value == "" {
			return
		}
		if seed[service] == nil {
			seed[service] = map[string]string{}
		}
		seed[service][key] = value
	}
	put("openai", "api_key", c.OpenAIKey)
	put("serper", "api_key", c.SerperKey)
	put("wolframalpha", "appid", c.WolframAppID)
	return seed
}
