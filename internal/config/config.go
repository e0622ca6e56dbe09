package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server      ServerConfig
	App         AppConfig
	Upstream    UpstreamConfig
	Credentials CredentialsConfig
	Scan        ScanConfig
	State       StateConfig
	Notify      NotifyConfig
}

// ServerConfig holds HTTP server settings for the control surface.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string   `envconfig:"APP_NAME" default:"restack-guard"`
	Environment string   `envconfig:"APP_ENV" default:"development"`
	Version     string   `envconfig:"APP_VERSION" default:"1.0.0"`
	APIKeys     []string `envconfig:"DASHBOARD_API_KEYS"` // empty leaves the dashboard open
}

// UpstreamConfig holds the two portal services the scanner reads from.
type UpstreamConfig struct {
	ApexBaseURL      string        `envconfig:"APEX_BASE_URL" default:"http://localhost:9001/api"`
	LoadEntryBaseURL string        `envconfig:"LOADENTRY_BASE_URL" default:"http://localhost:9002/api"`
	Timeout          time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"30s"`
	RatePerSecond    float64       `envconfig:"UPSTREAM_RATE_PER_SECOND" default:"5"`
	Burst            int           `envconfig:"UPSTREAM_BURST" default:"10"`
}

// CredentialsConfig holds bearer tokens or the files an external job writes them to.
// A token file takes precedence over the literal token.
type CredentialsConfig struct {
	ApexToken          string `envconfig:"APEX_TOKEN" default:""`
	ApexTokenFile      string `envconfig:"APEX_TOKEN_FILE" default:""`
	LoadEntryToken     string `envconfig:"LOADENTRY_TOKEN" default:""`
	LoadEntryTokenFile string `envconfig:"LOADENTRY_TOKEN_FILE" default:""`
}

// ScanConfig holds polling settings.
type ScanConfig struct {
	SubDepts        []int         `envconfig:"SCAN_SUBDEPTS" default:"85,86"`
	Interval        time.Duration `envconfig:"SCAN_INTERVAL" default:"10s"`
	CycleTimeout    time.Duration `envconfig:"SCAN_CYCLE_TIMEOUT" default:"2m"`
	DayBoundaryHour int           `envconfig:"SCAN_DAY_BOUNDARY_HOUR" default:"2"`
	AutoStart       bool          `envconfig:"SCAN_AUTOSTART" default:"false"`
}

// StateConfig selects where the dedup sets live.
type StateConfig struct {
	Type string `envconfig:"STATE_STORE_TYPE" default:"memory"` // memory, redis, sqlite, mysql or postgres

	RedisHost      string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort      int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"restackguard:state"`

	SQLitePath string `envconfig:"STATE_DB_PATH" default:"./data/state.db"`
	DBHost     string `envconfig:"STATE_DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"STATE_DB_PORT" default:"0"`
	DBName     string `envconfig:"STATE_DB_NAME" default:"restackguard"`
	DBUser     string `envconfig:"STATE_DB_USER" default:"root"`
	DBPassword string `envconfig:"STATE_DB_PASS" default:""`
	DBSSLMode  string `envconfig:"STATE_DB_SSLMODE" default:"disable"`
}

// NotifyConfig holds notification settings.
type NotifyConfig struct {
	WebhookURL string        `envconfig:"NOTIFY_WEBHOOK_URL" default:""`
	Timeout    time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"10s"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (s *StateConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", s.RedisHost, s.RedisPort)
}

// DSN returns the database/sql driver name and data source name for the
// configured SQL state store type.
func (s *StateConfig) DSN() (driver, dsn string, err error) {
	switch s.Type {
	case "sqlite":
		return "sqlite", fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", s.SQLitePath), nil
	case "mysql":
		port := s.DBPort
		if port == 0 {
			port = 3306
		}
		return "mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			s.DBUser, s.DBPassword, s.DBHost, port, s.DBName), nil
	case "postgres", "postgresql":
		port := s.DBPort
		if port == 0 {
			port = 5432
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(s.DBUser, s.DBPassword),
			Host:     fmt.Sprintf("%s:%d", s.DBHost, port),
			Path:     s.DBName,
			RawQuery: "sslmode=" + s.DBSSLMode,
		}
		return "postgres", u.String(), nil
	default:
		return "", "", fmt.Errorf("state store type %q is not an SQL store", s.Type)
	}
}

// Validate checks settings that have no sensible default.
func (c *Config) Validate() error {
	if len(c.Scan.SubDepts) == 0 {
		return fmt.Errorf("SCAN_SUBDEPTS must list at least one sub-department")
	}
	if c.Scan.Interval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL must be positive, got %v", c.Scan.Interval)
	}
	if c.Scan.DayBoundaryHour < 0 || c.Scan.DayBoundaryHour > 23 {
		return fmt.Errorf("SCAN_DAY_BOUNDARY_HOUR must be within 0-23, got %d", c.Scan.DayBoundaryHour)
	}
	if c.Upstream.ApexBaseURL == "" || c.Upstream.LoadEntryBaseURL == "" {
		return fmt.Errorf("APEX_BASE_URL and LOADENTRY_BASE_URL are required")
	}
	switch c.State.Type {
	case "memory", "redis", "sqlite", "mysql", "postgres", "postgresql":
	default:
		return fmt.Errorf("unknown STATE_STORE_TYPE %q", c.State.Type)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
