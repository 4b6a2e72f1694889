package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MigrationStatus describes one embedded migration against the database.
type MigrationStatus struct {
	Version   int64
	Applied   bool
	AppliedAt time.Time
}

type versionRow struct {
	VersionID int64
	IsApplied bool
	Tstamp    time.Time
}

// Status reports every embedded migration with its applied state. A missing
// version table means nothing has been applied yet.
func (db *DB) Status(ctx context.Context, table string) ([]MigrationStatus, error) {
	known, err := KnownVersions()
	if err != nil {
		return nil, err
	}

	rows, err := db.versionRows(ctx, table)
	if err != nil {
		return nil, err
	}

	return buildStatus(known, rows), nil
}

func (db *DB) versionRows(ctx context.Context, table string) ([]versionRow, error) {
	query := fmt.Sprintf(
		"SELECT version_id, is_applied, tstamp FROM %s ORDER BY id",
		quoteTable(table),
	)

	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("query version table: %w", err)
	}

	result, err := pgx.CollectRows(rows, pgx.RowToStructByPos[versionRow])
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("scan version table: %w", err)
	}

	return result, nil
}

// buildStatus folds version-table rows (oldest first) onto the known versions.
// The latest row for a version decides whether it is applied.
func buildStatus(known []int64, rows []versionRow) []MigrationStatus {
	latest := make(map[int64]versionRow, len(rows))
	for _, r := range rows {
		latest[r.VersionID] = r
	}

	statuses := make([]MigrationStatus, 0, len(known))

	for _, v := range known {
		st := MigrationStatus{Version: v}

		if r, ok := latest[v]; ok && r.IsApplied {
			st.Applied = true
			st.AppliedAt = r.Tstamp
		}

		statuses = append(statuses, st)
	}

	return statuses
}

// CurrentVersion returns the highest applied version, 0 when none.
func CurrentVersion(statuses []MigrationStatus) int64 {
	var current int64

	for _, st := range statuses {
		if st.Applied && st.Version > current {
			current = st.Version
		}
	}

	return current
}

// LatestVersion returns the highest known version, 0 when none.
func LatestVersion(statuses []MigrationStatus) int64 {
	var latest int64

	for _, st := range statuses {
		if st.Version > latest {
			latest = st.Version
		}
	}

	return latest
}

// quoteTable quotes table the way PostgreSQL resolves goose's unquoted name,
// folded to lower case.
func quoteTable(table string) string {
	if table == "" {
		table = DefaultMigrationTable
	}

	return pgx.Identifier(strings.Split(strings.ToLower(table), ".")).Sanitize()
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUndefinedTable
}
