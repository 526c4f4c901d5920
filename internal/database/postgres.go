package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/config"
)

const connectAttempts = 5

func NewPostgres(cfg config.DatabaseConfig, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	for i := 1; i <= connectAttempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err == nil {
			logger.Info().
				Str("host", cfg.Host).
				Str("database", cfg.Name).
				Msg("Connected to PostgreSQL")
			return db, nil
		}

		logger.Warn().
			Err(err).
			Int("attempt", i).
			Msg("PostgreSQL is not ready, retrying")
		if i < connectAttempts {
			time.Sleep(time.Duration(i) * time.Second)
		}
	}

	db.Close()
	return nil, fmt.Errorf("failed to ping database: %w", err)
}
