package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/app"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/config"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/database"
	"github.com/RubachokBoss/plagiarism-checker/report-service/pkg/logger"
)

func main() {
	mode := app.ModeAPI

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			direction := "up"
			var args []string
			if len(os.Args) > 2 {
				direction = os.Args[2]
				args = os.Args[3:]
			}
			runMigrations(direction, args)
			return
		case "api":
			mode = app.ModeAPI
		case "worker":
			mode = app.ModeWorker
		case "all":
			mode = app.ModeAll
		default:
			l := logger.New()
			l.Fatal().Str("command", os.Args[1]).Msg("Unknown command. Use api, worker, all or migrate")
		}
	}

	cfg, log := mustLoad()

	db, err := database.NewPostgres(cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	log.Info().Msg("Database connection established")

	application, err := app.New(cfg, log, db, mode)
	if err != nil {
		db.Close()
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	// Контекст для graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	log.Info().Str("mode", string(mode)).Msg("Report Service started")

	if err := application.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Report Service stopped with error")
		stop()
		os.Exit(1)
	}
}

func mustLoad() (*config.Config, zerolog.Logger) {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	return cfg, logger.NewWithConfig(cfg.Logging.Level, cfg.Logging.Pretty, cfg.Logging.NoColor)
}

func runMigrations(direction string, args []string) {
	cfg, log := mustLoad()

	db, err := database.NewPostgres(cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init migrator")
	}
	defer migrator.Close()

	switch direction {
	case "up":
		if err := migrator.Up(); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		log.Info().Msg("Migrations applied successfully")
	case "down":
		if err := migrator.Down(); err != nil {
			log.Fatal().Err(err).Msg("Failed to rollback migrations")
		}
		log.Info().Msg("Migrations rolled back successfully")
	case "force":
		if len(args) == 0 {
			log.Fatal().Msg("Usage: migrate force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid migration version")
		}
		if err := migrator.Force(version); err != nil {
			log.Fatal().Err(err).Msg("Failed to force migration version")
		}
		log.Info().Int("version", version).Msg("Migration version forced")
	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read migration version")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Current migration version")
	default:
		log.Fatal().Msg("Invalid migration direction. Use 'up', 'down', 'force' or 'version'")
	}
}
