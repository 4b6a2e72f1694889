package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/lueurxax/ielts-api/internal/core/errors"
)

// VectorExtension is the pgvector extension name.
const VectorExtension = "vector"

// Extension returns the installed version of the named extension.
func (db *DB) Extension(ctx context.Context, name string) (string, error) {
	var version string

	err := db.Pool.QueryRow(ctx, `SELECT extversion FROM pg_extension WHERE extname = $1`, name).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%s: %w", name, apperrors.ErrExtensionMissing)
		}

		return "", fmt.Errorf("query extension %s: %w", name, err)
	}

	return version, nil
}

// classifyExtensionError marks errors raised when the server has no
// packages for an extension named in CREATE EXTENSION.
func classifyExtensionError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case sqlStateUndefinedFile, sqlStateFeatureNotSupported:
		return fmt.Errorf("%w: %w", apperrors.ErrExtensionUnavailable, err)
	default:
		return err
	}
}
