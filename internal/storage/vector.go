package db

import (
	"context"
	"fmt"
	"slices"

	"github.com/pgvector/pgvector-go"

	apperrors "github.com/lueurxax/ielts-api/internal/core/errors"
)

// ProbeVector sends values through the vector type and reads them back,
// proving the extension is usable from this connection.
func (db *DB) ProbeVector(ctx context.Context, values []float32) error {
	if len(values) == 0 {
		return fmt.Errorf("empty probe vector: %w", apperrors.ErrInvalidInput)
	}

	var (
		dims int
		out  pgvector.Vector
	)

	err := db.Pool.QueryRow(ctx,
		`SELECT vector_dims($1::vector), ($1::vector)::text`,
		pgvector.NewVector(values),
	).Scan(&dims, &out)
	if err != nil {
		return fmt.Errorf("vector probe: %w", classifyExtensionError(err))
	}

	if dims != len(values) || !slices.Equal(out.Slice(), values) {
		return fmt.Errorf("sent %v, got %v: %w", values, out.Slice(), apperrors.ErrVectorMismatch)
	}

	return nil
}
