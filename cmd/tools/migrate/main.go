package main

import (
	"flag"
	"os"

	"github.com/joho/godotenv"

	"github.com/noah-isme/backend-florist/internal/obs"
	"github.com/noah-isme/backend-florist/internal/store"
)

func main() {
	direction := flag.String("direction", string(store.Up), "migration direction: up or down")
	flag.Parse()

	_ = godotenv.Load()
	logger := obs.NewLogger(os.Getenv("OBS_LOG_FORMAT"), os.Getenv("OBS_LOG_LEVEL")).With().Str("component", "migrate").Logger()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	version, err := store.Migrate(dbURL, store.Direction(*direction))
	if err != nil {
		logger.Fatal().Err(err).Str("direction", *direction).Msg("migrate")
	}
	logger.Info().Uint("version", version).Str("direction", *direction).Msg("migrations applied")
}
