package config

import "time"

// Daily request ceilings per tier. The device-level cap always mirrors the
// ceiling of the session's owner; it is not configured separately.
const (
	AnonymousDailyLimit     = 150
	AuthenticatedDailyLimit = 300
	PaidDailyLimit          = 600
)

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
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Janitor scheduling and per-invocation work caps. Sweeps report "has more"
// instead of looping unbounded so a slow sweep cannot starve the timer.
const (
	JanitorInterval       = 5 * time.Minute
	JanitorSweepTimeout   = 30 * time.Second
	ExpirySweepBatchSize  = 100
	ExpirySweepMaxBatches = 10
	ResetSweepBatchSize   = 500
	ResetSweepMaxBatches  = 20
)

// Default validity window for newly issued sessions.
const DefaultSessionTTL = 168 * time.Hour
