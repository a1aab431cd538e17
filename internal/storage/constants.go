package db

import "time"

// Database connection constants
const (
	// ConnectionRetrySleep is the sleep duration between connection retries
	ConnectionRetrySleep = 2 * time.Second
	// maxConnectionRetries is the number of retries for initial connection
	maxConnectionRetries = 10
)

// Pool defaults, used when PoolOptions leaves a field zero.
const (
	defaultMaxConns          int32 = 5
	defaultMinConns          int32 = 1
	defaultMaxConnIdleTime         = 30 * time.Minute
	defaultMaxConnLifetime         = time.Hour
	defaultHealthCheckPeriod       = time.Minute
)

// Advisory lock ids. Keep them distinct across jobs sharing the database.
const (
	migrationLockID int64 = 1000
	// FAQRunLockID guards the weekly FAQ run.
	FAQRunLockID int64 = 2001
)
