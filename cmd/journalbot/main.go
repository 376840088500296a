// Journalbot - Telegram trade journal
//
// Records trading positions through a step-by-step conversation, keeps a
// daily balance snapshot per user, and serves daily/weekly/monthly PnL
// reports over inline keyboards.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"journalbot/internal/bot"
	"journalbot/internal/config"
	"journalbot/internal/database"
	"journalbot/internal/entry"
	"journalbot/internal/session"
)

const version = "1.0.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Int("allowed_chats", len(cfg.AllowedChatIDs)).
		Msg("Journalbot starting...")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Conversation state and the entry flow
	sessions := session.NewStore()
	flow := entry.New(db, func() string {
		return time.Now().Format(database.DayFormat)
	})

	// Telegram bot
	telegramBot, err := bot.New(cfg, db, sessions, flow, time.Now)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
	}
	telegramBot.Start()

	log.Info().Msg("All systems online. Use /start in the chat.")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	telegramBot.Stop()
	log.Info().Msg("Goodbye!")
}
