// Package errors provides centralized error definitions for the migration runner.
// Errors are organized by concern to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Configuration errors.
var (
	// ErrInvalidDatabaseURL indicates the connection URL cannot be used with PostgreSQL.
	ErrInvalidDatabaseURL = errors.New("invalid database url")

	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")
)

// Connection errors.
var (
	// ErrConnectFailed indicates the database could not be reached after all retries.
	ErrConnectFailed = errors.New("database connection failed")
)

// Migration errors.
var (
	// ErrUnknownVersion indicates a target version that no embedded migration carries.
	ErrUnknownVersion = errors.New("unknown migration version")

	// ErrNoMigrations indicates the migration source contains nothing for the requested range.
	ErrNoMigrations = errors.New("no migrations")

	// ErrMalformedMigration indicates a migration file lacks the expected annotations.
	ErrMalformedMigration = errors.New("malformed migration")

	// ErrMigrationLocked indicates another session holds the migration lock.
	ErrMigrationLocked = errors.New("migration lock held by another session")

	// ErrSchemaOutdated indicates the database is behind the latest embedded migration.
	ErrSchemaOutdated = errors.New("schema is not at latest version")
)

// Extension errors.
var (
	// ErrExtensionMissing indicates an extension is not installed in the database.
	ErrExtensionMissing = errors.New("extension not installed")

	// ErrExtensionUnavailable indicates the server has no packages for the extension.
	ErrExtensionUnavailable = errors.New("extension not available on server")

	// ErrVectorMismatch indicates a vector round-trip returned different values.
	ErrVectorMismatch = errors.New("vector round-trip mismatch")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
