// Package migrations embeds SQL migration files for goose.
//
// Migration files follow the naming convention: NNNNN_description.sql
// They are applied in version order by cmd/migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Latest is the highest migration version shipped in FS.
const Latest int64 = 1
