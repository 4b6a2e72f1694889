package db

import "time"

// Database connection constants
const (
	// ConnectionRetrySleep is the sleep duration between connection retries
	ConnectionRetrySleep = 2 * time.Second
	// maxConnectionRetries is the number of retries for initial connection
	maxConnectionRetries = 10
)

// Database pool default constants. A migration run needs one connection for
// the advisory lock and one for goose.
const (
	defaultMaxConns       int32         = 2
	defaultConnectTimeout time.Duration = 5 * time.Second
)

// Migration defaults
const (
	// DefaultMigrationTable is the goose version table name.
	DefaultMigrationTable = "goose_db_version"

	gooseDialect = "postgres"
	gooseDir     = "."
)

const (
	// DefaultMigrationLockID is the advisory lock key serializing migration runs.
	DefaultMigrationLockID int64 = 1000
	// NoTarget makes a migration run go as far as it can in its direction.
	NoTarget               int64 = -1
)

// PostgreSQL error codes inspected by this package.
const (
	sqlStateUndefinedTable      = "42P01"
	sqlStateUndefinedFile       = "58P01"
	sqlStateFeatureNotSupported = "0A000"
)

// Log field names
const (
	logFieldAttempt = "attempt"
	logFieldLockID  = "lock_id"
	logFieldVersion = "version"
	logFieldTarget  = "target"
)
