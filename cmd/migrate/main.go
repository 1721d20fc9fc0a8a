package main

import (
	"flag"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
	"github.com/hackgods/doctor-appointment-scheduling/internal/logging"
	"github.com/hackgods/doctor-appointment-scheduling/migrations"
)

const usage = "usage: migrate [up|down|version|force <version>]"

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "migrate").Logger()

	cmd := "up"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	mg, err := db.NewMigrator(cfg.PostgresDSN, migrations.FS)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrator setup error")
	}
	defer func() {
		if err := mg.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing migrator")
		}
	}()

	switch cmd {
	case "up":
		changed, err := mg.Up()
		if err != nil {
			logger.Fatal().Err(err).Msg("migrate up failed")
		}
		if !changed {
			logger.Info().Msg("schema already up to date")
			return
		}
		logger.Info().Msg("migrations applied")
	case "down":
		if err := mg.Down(); err != nil {
			logger.Fatal().Err(err).Msg("migrate down failed")
		}
		logger.Info().Msg("migrations rolled back")
	case "force":
		if flag.NArg() < 2 {
			logger.Fatal().Msg(usage)
		}
		v, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid version")
		}
		if err := mg.Force(v); err != nil {
			logger.Fatal().Err(err).Msg("force failed")
		}
		logger.Info().Int("version", v).Msg("version forced")
	case "version":
		v, dirty, err := mg.Version()
		if err != nil {
			logger.Fatal().Err(err).Msg("could not read version")
		}
		logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("current schema version")
	default:
		logger.Fatal().Str("command", cmd).Msg(usage)
	}
}
