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
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Session engine cadence
const (
	TickInterval       = time.Second
	TickTimeout        = 900 * time.Millisecond
	SnapshotEveryTicks = 5
	EndedSessionGrace  = 5 * time.Minute
	PersistTimeout     = 5 * time.Second
	RecoverTimeout     = 30 * time.Second
)

// Join codes are JoinCodeDigits wide and drawn at most JoinCodeAttempts times.
const (
	JoinCodeDigits   = 6
	JoinCodeAttempts = 10
)

// Realtime transport
const (
	SocketWriteWait      = 10 * time.Second
	SocketPongWait       = 60 * time.Second
	SocketPingPeriod     = (SocketPongWait * 9) / 10
	SocketMaxMessageSize = 8 << 10
	SocketUpgradesPerMin = 30
	SocketEventTimeout   = 5 * time.Second
	SSEHeartbeatInterval = 30 * time.Second
)

// Default rate limiting
const DefaultRateLimitPerMin = 60
