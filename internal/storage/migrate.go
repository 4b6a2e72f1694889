package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	apperrors "github.com/lueurxax/ielts-api/internal/core/errors"
	"github.com/lueurxax/ielts-api/migrations"
)

// MigrateOptions controls a single migration run.
type MigrateOptions struct {
	// Table is the goose version table, optionally schema qualified.
	Table string
	// LockID is the advisory lock key held for the duration of the run.
	LockID int64
	// Target is the version to stop at; NoTarget runs as far as possible.
	Target int64
	// AllowMissing applies migrations older than the current version.
	AllowMissing bool
	// NoWait fails with ErrMigrationLocked instead of queueing behind another run.
	NoWait bool
}

// DefaultMigrateOptions returns options that apply every pending migration.
func DefaultMigrateOptions() MigrateOptions {
	return MigrateOptions{
		Table:  DefaultMigrationTable,
		LockID: DefaultMigrationLockID,
		Target: NoTarget,
	}
}

func (o MigrateOptions) table() string {
	if strings.TrimSpace(o.Table) == "" {
		return DefaultMigrationTable
	}

	return o.Table
}

func (o MigrateOptions) gooseOptions() []goose.OptionsFunc {
	if o.AllowMissing {
		return []goose.OptionsFunc{goose.WithAllowMissing()}
	}

	return nil
}

type gooseLogger struct {
	logger *zerolog.Logger
}

func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal().Msgf(strings.TrimSpace(format), v...)
}

func (l *gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msgf(strings.TrimSpace(format), v...)
}

// Migrate applies pending migrations up to opts.Target.
func (db *DB) Migrate(ctx context.Context, opts MigrateOptions) error {
	err := db.withMigrationLock(ctx, opts, func(sqlDB *sql.DB) error {
		if opts.Target == NoTarget {
			return goose.UpContext(ctx, sqlDB, gooseDir, opts.gooseOptions()...)
		}

		return goose.UpToContext(ctx, sqlDB, gooseDir, opts.Target, opts.gooseOptions()...)
	})
	if err != nil {
		return runError("run migrations", err)
	}

	return nil
}

// Rollback reverts the latest migration, or every migration above opts.Target.
// The current version is read under the migration lock; when nothing is above
// the target the call is a no-op.
func (db *DB) Rollback(ctx context.Context, opts MigrateOptions) error {
	err := db.withMigrationLock(ctx, opts, func(sqlDB *sql.DB) error {
		current, err := goose.GetDBVersionContext(ctx, sqlDB)
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}

		if !needsRollback(current, opts.Target) {
			db.Logger.Info().Int64(logFieldVersion, current).Msg("Nothing to revert")

			return nil
		}

		db.Logger.Info().Int64(logFieldVersion, current).Int64(logFieldTarget, opts.Target).Msg("Reverting migrations")

		if opts.Target == NoTarget {
			return goose.DownContext(ctx, sqlDB, gooseDir, opts.gooseOptions()...)
		}

		return goose.DownToContext(ctx, sqlDB, gooseDir, opts.Target, opts.gooseOptions()...)
	})
	if err != nil {
		return runError("rollback migrations", err)
	}

	return nil
}

// needsRollback reports whether a schema at current has anything above target.
func needsRollback(current, target int64) bool {
	if current <= 0 {
		return false
	}

	return target == NoTarget || target < current
}

// Redo reverts and re-applies the latest migration.
func (db *DB) Redo(ctx context.Context, opts MigrateOptions) error {
	err := db.withMigrationLock(ctx, opts, func(sqlDB *sql.DB) error {
		return goose.RedoContext(ctx, sqlDB, gooseDir, opts.gooseOptions()...)
	})
	if err != nil {
		return runError("redo migration", err)
	}

	return nil
}

// runError wraps a failed goose run, flagging a server without pgvector.
func runError(action string, err error) error {
	return fmt.Errorf("%s: %w", action, classifyExtensionError(err))
}

// Version returns the current schema version, 0 when nothing is applied.
func (db *DB) Version(ctx context.Context, table string) (int64, error) {
	statuses, err := db.Status(ctx, table)
	if err != nil {
		return 0, err
	}

	return CurrentVersion(statuses), nil
}

// ValidateTarget checks that target is 0 or carried by an embedded migration.
func ValidateTarget(target int64) error {
	if target == NoTarget || target == 0 {
		return nil
	}

	known, err := KnownVersions()
	if err != nil {
		return err
	}

	for _, v := range known {
		if v == target {
			return nil
		}
	}

	return fmt.Errorf("version %d: %w", target, apperrors.ErrUnknownVersion)
}

// KnownVersions lists the embedded migration versions in ascending order.
func KnownVersions() ([]int64, error) {
	goose.SetBaseFS(migrations.FS)

	collected, err := goose.CollectMigrations(gooseDir, 0, goose.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("collect migrations: %w", err)
	}

	versions := make([]int64, 0, len(collected))
	for _, m := range collected {
		versions = append(versions, m.Version)
	}

	if len(versions) == 0 {
		return nil, apperrors.ErrNoMigrations
	}

	return versions, nil
}

// withMigrationLock runs fn while holding the migration advisory lock so that
// only one migration runs at a time across instances.
func (db *DB) withMigrationLock(ctx context.Context, opts MigrateOptions, fn func(*sql.DB) error) error {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	lockID := opts.LockID
	if lockID == 0 {
		lockID = DefaultMigrationLockID
	}

	db.Logger.Debug().Int64(logFieldLockID, lockID).Msg("waiting for migration lock")

	if err := acquireAdvisoryLock(ctx, conn, lockID, !opts.NoWait); err != nil {
		return err
	}

	defer func() {
		//nolint:errcheck // advisory unlock in defer is best-effort, lock released on connection close anyway
		_ = releaseAdvisoryLock(context.WithoutCancel(ctx), conn, lockID)
	}()

	dbSQL := stdlib.OpenDB(*db.Pool.Config().ConnConfig)

	defer func() {
		_ = dbSQL.Close()
	}()

	if err := db.configureGoose(opts.table()); err != nil {
		return err
	}

	return fn(dbSQL)
}

func (db *DB) configureGoose(table string) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(&gooseLogger{logger: db.Logger})
	goose.SetTableName(table)

	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	return nil
}
