// Package offline renders migration SQL scripts without a database connection,
// for review or for applying through another channel (psql, a DBA ticket).
package offline

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/lueurxax/ielts-api/internal/core/errors"
)

// Direction selects which migration sections are rendered.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Latest stands for the highest embedded version (Up target, Down start).
// As a Down target it means a single step.
const Latest int64 = -1

const defaultTable = "goose_db_version"

// Options describes the version range to render. Up renders versions in
// (From, To]; Down renders versions in (To, From], newest first.
type Options struct {
	Direction Direction
	From      int64
	To        int64
	Table     string
}

// Render produces the SQL script for the requested range.
func Render(fsys fs.FS, opts Options) (string, error) {
	all, err := Load(fsys)
	if err != nil {
		return "", err
	}

	if len(all) == 0 {
		return "", apperrors.ErrNoMigrations
	}

	table := opts.Table
	if strings.TrimSpace(table) == "" {
		table = defaultTable
	}

	// goose leaves the name unquoted, so PostgreSQL folds it to lower case.
	quoted := pgx.Identifier(strings.Split(strings.ToLower(table), ".")).Sanitize()

	switch opts.Direction {
	case Up, "":
		return renderUp(all, opts, quoted)
	case Down:
		return renderDown(all, opts, quoted)
	default:
		return "", fmt.Errorf("direction %q: %w", opts.Direction, apperrors.ErrInvalidInput)
	}
}

func renderUp(all []Migration, opts Options, table string) (string, error) {
	from, to := opts.From, opts.To
	if from == Latest {
		from = 0
	}

	if to == Latest {
		to = all[len(all)-1].Version
	}

	if err := checkKnown(all, to); err != nil {
		return "", err
	}

	selected := make([]Migration, 0, len(all))
	for _, m := range all {
		if m.Version > from && m.Version <= to {
			selected = append(selected, m)
		}
	}

	if len(selected) == 0 {
		return "", fmt.Errorf("up from %d to %d: %w", from, to, apperrors.ErrNoMigrations)
	}

	var b strings.Builder

	if from == 0 {
		writeVersionTable(&b, table)
	}

	prev := from
	for _, m := range selected {
		fmt.Fprintf(&b, "-- Running upgrade %d -> %d (%s)\n\n", prev, m.Version, m.Name)
		writeSection(&b, m.Up, m.NoTransaction,
			fmt.Sprintf("INSERT INTO %s (version_id, is_applied) VALUES (%d, true);", table, m.Version))

		prev = m.Version
	}

	return b.String(), nil
}

func renderDown(all []Migration, opts Options, table string) (string, error) {
	from, to := opts.From, opts.To
	if from == Latest {
		from = all[len(all)-1].Version
	}

	if err := checkKnown(all, from); err != nil {
		return "", err
	}

	if to == Latest {
		to = previousVersion(all, from)
	}

	selected := make([]Migration, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if m := all[i]; m.Version > to && m.Version <= from {
			selected = append(selected, m)
		}
	}

	if len(selected) == 0 {
		return "", fmt.Errorf("down from %d to %d: %w", from, to, apperrors.ErrNoMigrations)
	}

	var b strings.Builder

	for _, m := range selected {
		next := previousVersion(all, m.Version)
		fmt.Fprintf(&b, "-- Running downgrade %d -> %d (%s)\n\n", m.Version, next, m.Name)
		writeSection(&b, m.Down, m.NoTransaction,
			fmt.Sprintf("DELETE FROM %s WHERE version_id = %d;", table, m.Version))
	}

	return b.String(), nil
}

func writeVersionTable(b *strings.Builder, table string) {
	fmt.Fprintf(b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	b.WriteString("    id integer PRIMARY KEY GENERATED BY DEFAULT AS IDENTITY,\n")
	b.WriteString("    version_id bigint NOT NULL,\n")
	b.WriteString("    is_applied boolean NOT NULL,\n")
	b.WriteString("    tstamp timestamp NOT NULL DEFAULT now()\n")
	b.WriteString(");\n\n")
	fmt.Fprintf(b, "INSERT INTO %s (version_id, is_applied) SELECT 0, true WHERE NOT EXISTS (SELECT 1 FROM %s);\n\n", table, table)
}

func writeSection(b *strings.Builder, body string, noTx bool, bookkeeping string) {
	if !noTx {
		b.WriteString("BEGIN;\n\n")
	}

	if body != "" {
		b.WriteString(body)
		b.WriteString("\n\n")
	}

	b.WriteString(bookkeeping)
	b.WriteString("\n\n")

	if !noTx {
		b.WriteString("COMMIT;\n\n")
	}
}

func checkKnown(all []Migration, version int64) error {
	if version == 0 {
		return nil
	}

	for _, m := range all {
		if m.Version == version {
			return nil
		}
	}

	return fmt.Errorf("version %d: %w", version, apperrors.ErrUnknownVersion)
}

func previousVersion(all []Migration, version int64) int64 {
	var prev int64

	for _, m := range all {
		if m.Version < version && m.Version > prev {
			prev = m.Version
		}
	}

	return prev
}
