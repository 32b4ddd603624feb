package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Dev convenience for the in-memory session store: when set, one
	// long-lived session for this token is seeded at startup so a local
	// client can connect without a database.
	DevSessionToken    string
	DevSessionUserID   string
	DevSessionUsername string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("TODOSYNC_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("TODOSYNC_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("TODOSYNC_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("TODOSYNC_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("TODOSYNC_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("TODOSYNC_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("TODOSYNC_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("TODOSYNC_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("TODOSYNC_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("TODOSYNC_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("TODOSYNC_READINESS_REQUIRE_DB", false),

		DevSessionToken:    EnvString("TODOSYNC_DEV_SESSION_TOKEN", ""),
		DevSessionUserID:   EnvString("TODOSYNC_DEV_SESSION_USER", "dev-user"),
		DevSessionUsername: EnvString("TODOSYNC_DEV_SESSION_USERNAME", "dev"),
	}
}
