package main

import (
	"errors"
	"flag"

	migrate "github.com/golang-migrate/migrate/v4"

	"github.com/desawali/storefront-api/internal/config"
	"github.com/desawali/storefront-api/internal/obs"
	"github.com/desawali/storefront-api/internal/order"
)

func main() {
	direction := flag.String("direction", "up", "up or down")
	steps := flag.Int("steps", 1, "migrations to roll back with -direction=down; 0 rolls back all")
	flag.Parse()

	logger := obs.NewLogger("json", "info").With().Str("component", "migrate").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	m, err := order.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open migrator")
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Error().AnErr("source", srcErr).AnErr("database", dbErr).Msg("close migrator")
		}
	}()

	switch *direction {
	case "up":
		err = order.MigrateUp(m)
	case "down":
		err = order.MigrateDown(m, *steps)
	default:
		logger.Fatal().Str("direction", *direction).Msg("unknown direction")
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Info().Msg("schema empty")
	case err != nil:
		logger.Error().Err(err).Msg("read schema version")
	default:
		logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema migrated")
	}
}
