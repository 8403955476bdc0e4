package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerWriteTimeout    = 35 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Failed attempts older than this are purged by the cleanup job
const FailedAttemptRetention = 24 * time.Hour

// Distributed session lock
const (
	SessionLockTTL  = 30 * time.Second
	SessionLockPoll = 50 * time.Millisecond
)

// Input and response limits
const (
	MaxInputLength         = 1000
	USSDMaxBodySize        = 8 << 10
	AuditResponseMaxLength = 500
)
