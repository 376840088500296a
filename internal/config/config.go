package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the bot
type Config struct {
	// Telegram
	TelegramToken  string
	AllowedChatIDs []int64

	// Mode
	Debug bool

	// Database
	DatabasePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		Debug:         getEnvBool("DEBUG", false),
		DatabasePath:  getEnv("DATABASE_PATH", "data/journalbot.db"),
	}

	// Parse the allow-list
	if raw := os.Getenv("ALLOWED_CHAT_IDS"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid ALLOWED_CHAT_IDS entry %q: %w", part, err)
			}
			cfg.AllowedChatIDs = append(cfg.AllowedChatIDs, id)
		}
	}

	// Validate required fields
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if len(cfg.AllowedChatIDs) == 0 {
		return nil, fmt.Errorf("ALLOWED_CHAT_IDS is required")
	}

	return cfg, nil
}

// Allowed reports whether a chat is on the static allow-list.
func (c *Config) Allowed(chatID int64) bool {
	for _, id := range c.AllowedChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
