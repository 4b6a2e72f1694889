package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/lueurxax/ielts-api/internal/core/errors"
)

// acquireAdvisoryLock takes the session-level lock on conn. With wait unset it
// fails fast with ErrMigrationLocked when another session holds the lock.
func acquireAdvisoryLock(ctx context.Context, conn *pgxpool.Conn, lockID int64, wait bool) error {
	if wait {
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}

		return nil
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
		return fmt.Errorf("try acquire advisory lock: %w", err)
	}

	if !acquired {
		return fmt.Errorf("lock %d: %w", lockID, apperrors.ErrMigrationLocked)
	}

	return nil
}

func releaseAdvisoryLock(ctx context.Context, conn *pgxpool.Conn, lockID int64) error {
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", lockID); err != nil {
		return fmt.Errorf("release advisory lock: %w", err)
	}

	return nil
}
