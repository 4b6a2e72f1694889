// Package app provides the migration runner bootstrap and command orchestration.
//
// The App type wires together configuration, storage and metrics and exposes
// one method per command:
//
//   - Up: apply pending migrations (optionally up to a target version)
//   - Down: revert the latest migration (or down to a target version)
//   - Redo: revert and re-apply the latest migration
//   - Status / Version: report the schema state
//   - Verify: check the schema is current and pgvector is usable
//
// Offline rendering (RenderSQL) needs no database and is a package function.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/lueurxax/ielts-api/internal/core/errors"
	"github.com/lueurxax/ielts-api/internal/migrate/offline"
	"github.com/lueurxax/ielts-api/internal/platform/config"
	"github.com/lueurxax/ielts-api/internal/platform/observability"
	db "github.com/lueurxax/ielts-api/internal/storage"
	"github.com/lueurxax/ielts-api/migrations"
)

// Command names, used as metric labels and log fields.
const (
	CommandUp      = "up"
	CommandDown    = "down"
	CommandRedo    = "redo"
	CommandStatus  = "status"
	CommandVersion = "version"
	CommandVerify  = "verify"
	CommandSQL     = "sql"
)

const (
	logFieldCommand  = "command"
	logFieldVersion  = "version"
	logFieldTarget   = "target"
	logFieldDuration = "duration"
	logFieldExtVer   = "extension_version"
	timeLayout       = time.RFC3339
	pendingLabel     = "pending"
)

// probeVector is sent through the vector type by Verify.
var probeVector = []float32{1, 0.5, -0.25}

// Store is the database surface the commands need.
type Store interface {
	Migrate(ctx context.Context, opts db.MigrateOptions) error
	Rollback(ctx context.Context, opts db.MigrateOptions) error
	Redo(ctx context.Context, opts db.MigrateOptions) error
	Status(ctx context.Context, table string) ([]db.MigrationStatus, error)
	Extension(ctx context.Context, name string) (string, error)
	ProbeVector(ctx context.Context, values []float32) error
}

// App holds the runner dependencies.
type App struct {
	cfg      *config.Config
	database Store
	logger   *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database Store, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

func (a *App) migrateOptions(target int64) db.MigrateOptions {
	return db.MigrateOptions{
		Table:        a.cfg.MigrationTable,
		LockID:       a.cfg.MigrationLockID,
		Target:       target,
		AllowMissing: a.cfg.MigrationAllowMissing,
		NoWait:       !a.cfg.MigrationLockWait,
	}
}

// Up applies pending migrations; target db.NoTarget applies all of them.
func (a *App) Up(ctx context.Context, target int64) error {
	return a.instrument(ctx, CommandUp, func(ctx context.Context) error {
		if err := db.ValidateTarget(target); err != nil {
			return err
		}

		a.logger.Info().Int64(logFieldTarget, target).Msg("Applying migrations")

		if err := a.database.Migrate(ctx, a.migrateOptions(target)); err != nil {
			return err
		}

		return a.recordVersion(ctx)
	})
}

// Down reverts migrations. Without a target it reverts one step; the store
// treats reverting an empty schema as a no-op.
func (a *App) Down(ctx context.Context, target int64) error {
	return a.instrument(ctx, CommandDown, func(ctx context.Context) error {
		if err := db.ValidateTarget(target); err != nil {
			return err
		}

		if err := a.database.Rollback(ctx, a.migrateOptions(target)); err != nil {
			return err
		}

		return a.recordVersion(ctx)
	})
}

// Redo reverts and re-applies the latest applied migration.
func (a *App) Redo(ctx context.Context) error {
	return a.instrument(ctx, CommandRedo, func(ctx context.Context) error {
		if err := a.database.Redo(ctx, a.migrateOptions(db.NoTarget)); err != nil {
			return err
		}

		return a.recordVersion(ctx)
	})
}

// Status writes one line per embedded migration to w.
func (a *App) Status(ctx context.Context, w io.Writer) error {
	return a.instrument(ctx, CommandStatus, func(ctx context.Context) error {
		statuses, err := a.database.Status(ctx, a.cfg.MigrationTable)
		if err != nil {
			return err
		}

		observability.SchemaVersion.Set(float64(db.CurrentVersion(statuses)))

		return writeStatus(w, statuses)
	})
}

// Version writes the current schema version to w.
func (a *App) Version(ctx context.Context, w io.Writer) error {
	return a.instrument(ctx, CommandVersion, func(ctx context.Context) error {
		current, err := a.currentVersion(ctx)
		if err != nil {
			return err
		}

		observability.SchemaVersion.Set(float64(current))

		_, err = fmt.Fprintln(w, current)

		return err
	})
}

// Verify checks that every embedded migration is applied, the vector
// extension is installed, and a vector survives a round trip.
func (a *App) Verify(ctx context.Context) error {
	return a.instrument(ctx, CommandVerify, func(ctx context.Context) error {
		statuses, err := a.database.Status(ctx, a.cfg.MigrationTable)
		if err != nil {
			return err
		}

		current, latest := db.CurrentVersion(statuses), db.LatestVersion(statuses)
		observability.SchemaVersion.Set(float64(current))

		if current != latest {
			return fmt.Errorf("at %d, latest %d: %w", current, latest, apperrors.ErrSchemaOutdated)
		}

		extVersion, err := a.database.Extension(ctx, db.VectorExtension)
		if err != nil {
			if errors.Is(err, apperrors.ErrExtensionMissing) {
				observability.ExtensionInstalled.WithLabelValues(db.VectorExtension).Set(0)
			}

			return err
		}

		observability.ExtensionInstalled.WithLabelValues(db.VectorExtension).Set(1)

		if err := a.database.ProbeVector(ctx, probeVector); err != nil {
			return err
		}

		a.logger.Info().
			Int64(logFieldVersion, current).
			Str(logFieldExtVer, extVersion).
			Msg("Schema verified")

		return nil
	})
}

// RenderSQL writes the offline migration script for opts to w.
func RenderSQL(w io.Writer, cfg *config.Config, opts offline.Options) error {
	if opts.Table == "" {
		opts.Table = cfg.MigrationTable
	}

	script, err := offline.Render(migrations.FS, opts)
	if err != nil {
		return fmt.Errorf("render %s script: %w", opts.Direction, err)
	}

	_, err = io.WriteString(w, script)

	return err
}

func (a *App) currentVersion(ctx context.Context) (int64, error) {
	statuses, err := a.database.Status(ctx, a.cfg.MigrationTable)
	if err != nil {
		return 0, err
	}

	return db.CurrentVersion(statuses), nil
}

func (a *App) recordVersion(ctx context.Context) error {
	current, err := a.currentVersion(ctx)
	if err != nil {
		return err
	}

	observability.SchemaVersion.Set(float64(current))
	a.logger.Info().Int64(logFieldVersion, current).Msg("Schema version")

	return nil
}

// instrument records run metrics around fn and pushes them when configured.
func (a *App) instrument(ctx context.Context, command string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	status := observability.StatusSuccess
	if err != nil {
		status = observability.StatusError
	}

	observability.MigrationRuns.WithLabelValues(command, status).Inc()
	observability.MigrationDuration.WithLabelValues(command).Observe(elapsed.Seconds())

	a.logger.Debug().Str(logFieldCommand, command).Dur(logFieldDuration, elapsed).Msg("Command finished")

	//nolint:contextcheck // metrics push must outlive a canceled command context
	if pushErr := observability.Push(context.WithoutCancel(ctx), a.cfg.MetricsPushgatewayURL, a.cfg.MetricsJob); pushErr != nil {
		a.logger.Warn().Err(pushErr).Msg("failed to push metrics")
	}

	if err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}

	return nil
}

func writeStatus(w io.Writer, statuses []db.MigrationStatus) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if _, err := fmt.Fprintln(tw, "VERSION\tAPPLIED AT"); err != nil {
		return err
	}

	for _, st := range statuses {
		applied := pendingLabel
		if st.Applied {
			applied = st.AppliedAt.Format(timeLayout)
		}

		if _, err := fmt.Fprintf(tw, "%d\t%s\n", st.Version, applied); err != nil {
			return err
		}
	}

	return tw.Flush()
}
