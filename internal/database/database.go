// Package database provides PostgreSQL connection management and
// schema bootstrap for the segment store.
package database

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config describes how to reach the segment store.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ConfigFromEnv reads DB_* environment variables, falling back to local
// development defaults so a bare `go run` against a local Postgres works.
func ConfigFromEnv() Config {
	port, _ := strconv.Atoi(envOr("DB_PORT", "5432"))
	maxOpen, _ := strconv.Atoi(envOr("DB_MAX_OPEN_CONNS", "10"))
	maxIdle, _ := strconv.Atoi(envOr("DB_MAX_IDLE_CONNS", "5"))
	lifetime, _ := time.ParseDuration(envOr("DB_CONN_MAX_LIFETIME", "5m"))

	return Config{
		Host:            envOr("DB_HOST", "localhost"),
		Port:            port,
		User:            envOr("DB_USER", "trafficsense"),
		Password:        envOr("DB_PASSWORD", "localdev"),
		Database:        envOr("DB_NAME", "trafficsense"),
		SSLMode:         envOr("DB_SSL_MODE", "disable"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: lifetime,
	}
}

// ConnectionString renders the config as a postgres:// URL.
func (c Config) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Connect opens a pgx pool and verifies it with a ping so a bad config
// fails at startup rather than on the first query.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns) //nolint:gosec // small configured value
	poolConfig.MinConns = int32(cfg.MaxIdleConns) //nolint:gosec // small configured value
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// EnsureSchema creates the segment tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS segments (
			segment_id    TEXT PRIMARY KEY,
			location      TEXT NOT NULL DEFAULT '',
			lat           DOUBLE PRECISION NOT NULL,
			lng           DOUBLE PRECISION NOT NULL,
			current_speed DOUBLE PRECISION NOT NULL DEFAULT 0,
			average_speed DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_speed     DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_moving     BOOLEAN NOT NULL DEFAULT FALSE,
			source        TEXT NOT NULL DEFAULT '',
			updated_at    TIMESTAMPTZ NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS speed_history (
			id          BIGSERIAL PRIMARY KEY,
			segment_id  TEXT NOT NULL REFERENCES segments(segment_id) ON DELETE CASCADE,
			speed       DOUBLE PRECISION NOT NULL,
			lat         DOUBLE PRECISION NOT NULL,
			lng         DOUBLE PRECISION NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_segments_updated_at ON segments (updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_segments_position ON segments (lat, lng)`,
		`CREATE INDEX IF NOT EXISTS idx_speed_history_segment ON speed_history (segment_id, recorded_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
