package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lueurxax/ielts-api/internal/app"
	"github.com/lueurxax/ielts-api/internal/migrate/offline"
	"github.com/lueurxax/ielts-api/internal/platform/config"
	db "github.com/lueurxax/ielts-api/internal/storage"
)

const logFieldRunID = "run_id"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1) //nolint:gocritic // deferred stop is called explicitly above
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Schema migrations for the IELTS API database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var upTarget, downTarget int64

	upCmd := &cobra.Command{
		Use:   app.CommandUp,
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: online(func(ctx context.Context, a *app.App, _ *cobra.Command) error {
			return a.Up(ctx, upTarget)
		}),
	}
	upCmd.Flags().Int64Var(&upTarget, "to", db.NoTarget, "stop at this version (default: latest)")

	downCmd := &cobra.Command{
		Use:   app.CommandDown,
		Short: "Revert the latest migration, or every migration above --to",
		Args:  cobra.NoArgs,
		RunE: online(func(ctx context.Context, a *app.App, _ *cobra.Command) error {
			return a.Down(ctx, downTarget)
		}),
	}
	downCmd.Flags().Int64Var(&downTarget, "to", db.NoTarget, "revert down to this version (0 reverts everything)")

	redoCmd := &cobra.Command{
		Use:   app.CommandRedo,
		Short: "Revert and re-apply the latest migration",
		Args:  cobra.NoArgs,
		RunE: online(func(ctx context.Context, a *app.App, _ *cobra.Command) error {
			return a.Redo(ctx)
		}),
	}

	statusCmd := &cobra.Command{
		Use:   app.CommandStatus,
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: online(func(ctx context.Context, a *app.App, cmd *cobra.Command) error {
			return a.Status(ctx, cmd.OutOrStdout())
		}),
	}

	versionCmd := &cobra.Command{
		Use:   app.CommandVersion,
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: online(func(ctx context.Context, a *app.App, cmd *cobra.Command) error {
			return a.Version(ctx, cmd.OutOrStdout())
		}),
	}

	verifyCmd := &cobra.Command{
		Use:   app.CommandVerify,
		Short: "Check the schema is current and the vector extension works",
		Args:  cobra.NoArgs,
		RunE: online(func(ctx context.Context, a *app.App, _ *cobra.Command) error {
			return a.Verify(ctx)
		}),
	}

	rootCmd.AddCommand(upCmd, downCmd, redoCmd, statusCmd, versionCmd, verifyCmd, newSQLCmd())

	return rootCmd
}

// newSQLCmd renders migration SQL without connecting to the database.
func newSQLCmd() *cobra.Command {
	var (
		down     bool
		from, to int64
	)

	sqlCmd := &cobra.Command{
		Use:   app.CommandSQL,
		Short: "Print the migration SQL script without connecting (offline mode)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			opts := offline.Options{Direction: offline.Up, From: from, To: to}

			if down {
				opts.Direction = offline.Down
				if !cmd.Flags().Changed("from") {
					opts.From = offline.Latest
				}
			}

			if err := app.RenderSQL(cmd.OutOrStdout(), cfg, opts); err != nil {
				logger.Error().Err(err).Msg("failed to render migration script")
				return err
			}

			return nil
		},
	}
	sqlCmd.Flags().BoolVar(&down, "down", false, "render the revert script")
	sqlCmd.Flags().Int64Var(&from, "from", 0, "version the database is at (down default: latest)")
	sqlCmd.Flags().Int64Var(&to, "to", offline.Latest, "version to end at (up default: latest, down default: one step)")

	return sqlCmd
}

type runFunc func(ctx context.Context, a *app.App, cmd *cobra.Command) error

// online wraps a command that needs a database connection.
func online(run runFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx := cmd.Context()

		poolOpts := db.PoolOptions{
			MaxConns:       cfg.DBMaxConnections,
			ConnectTimeout: cfg.DBConnectTimeout,
			ConnectRetries: cfg.DBConnectRetries,
			RetrySleep:     cfg.DBConnectRetrySleep,
		}

		logger.Info().Str("database", cfg.Redacted()).Str("command", cmd.Name()).Msg("Connecting")

		database, err := db.NewWithOptions(ctx, cfg.DatabaseURL, poolOpts, logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to database")
			return err
		}
		defer database.Close()

		if err := run(ctx, app.New(cfg, database, logger), cmd); err != nil {
			logger.Error().Err(err).Msg("migration command failed")
			return err
		}

		return nil
	}
}

func setup() (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		logger := newLogger("", "")
		logger.Error().Err(err).Msg("failed to load config")

		return nil, nil, err
	}

	logger := newLogger(cfg.AppEnv, cfg.LogLevel).With().Str(logFieldRunID, uuid.NewString()).Logger()

	return cfg, &logger, nil
}

func newLogger(appEnv, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(lvl).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
