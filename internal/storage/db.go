// Package db provides PostgreSQL access for the schema migration runner.
//
// This package contains:
//   - DB: Connection pool wrapper with retrying connect
//   - Migration runs via goose, serialized with a PostgreSQL advisory lock
//   - Migration status read from the goose version table
//   - Extension inspection and a pgvector round-trip probe
//
// The package uses pgx for connection pooling and the pgx stdlib adapter to
// hand goose a database/sql handle.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	apperrors "github.com/lueurxax/ielts-api/internal/core/errors"
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	Logger *zerolog.Logger
}

// PoolOptions configures the database connection pool.
type PoolOptions struct {
	MaxConns       int32
	ConnectTimeout time.Duration
	ConnectRetries int
	RetrySleep     time.Duration
}

// DefaultPoolOptions returns sensible default pool configuration.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:       defaultMaxConns,
		ConnectTimeout: defaultConnectTimeout,
		ConnectRetries: maxConnectionRetries,
		RetrySleep:     ConnectionRetrySleep,
	}
}

// New creates a new database connection with default pool options.
func New(ctx context.Context, dsn string, logger *zerolog.Logger) (*DB, error) {
	return NewWithOptions(ctx, dsn, DefaultPoolOptions(), logger)
}

// NewWithOptions creates a new database connection with custom pool options.
func NewWithOptions(ctx context.Context, dsn string, opts PoolOptions, logger *zerolog.Logger) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	applyPoolOptions(config, opts)

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return connectWithRetries(ctx, config, opts, logger)
}

// applyPoolOptions applies non-zero pool options to the config.
func applyPoolOptions(config *pgxpool.Config, opts PoolOptions) {
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}

	if opts.ConnectTimeout > 0 {
		config.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}
}

// connectWithRetries attempts to connect to the database with retries.
func connectWithRetries(ctx context.Context, config *pgxpool.Config, opts PoolOptions, logger *zerolog.Logger) (*DB, error) {
	retries := opts.ConnectRetries
	if retries <= 0 {
		retries = 1
	}

	sleep := opts.RetrySleep
	if sleep <= 0 {
		sleep = ConnectionRetrySleep
	}

	var err error

	for i := 0; i < retries; i++ {
		var pool *pgxpool.Pool

		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return &DB{Pool: pool, Logger: logger}, nil
			}

			pool.Close()
		}

		logger.Warn().Err(err).Int(logFieldAttempt, i+1).Msg("database not reachable")

		if i == retries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect canceled: %w", ctx.Err())
		case <-time.After(sleep):
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", apperrors.ErrConnectFailed, retries, err)
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
