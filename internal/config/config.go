package config

import (
	"fmt"
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
	Server Server
	App    App
	Meli   Meli
	Store  Store
	Queue  Queue
	Audit  Audit
}

// Server holds HTTP server settings.
type Server struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// App holds application-level settings.
type App struct {
	Name        string `envconfig:"APP_NAME" default:"meli-stock-audit"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
}

// Meli holds marketplace API credentials and client tuning.
type Meli struct {
	BaseURL      string        `envconfig:"MELI_BASE_URL" default:"https://api.mercadolibre.com"`
	ClientID     string        `envconfig:"MELI_CLIENT_ID" default:""`
	ClientSecret string        `envconfig:"MELI_CLIENT_SECRET" default:""`
	RedirectURI  string        `envconfig:"MELI_REDIRECT_URI" default:""`
	AppID        int64         `envconfig:"MELI_APP_ID" default:"0"`
	MaxRetries   int           `envconfig:"MELI_MAX_RETRIES" default:"3"`
	RetryDelay   time.Duration `envconfig:"MELI_RETRY_DELAY" default:"1s"`
	Timeout      time.Duration `envconfig:"MELI_TIMEOUT" default:"30s"`
}

// Store holds storage backend settings. Type selects the backend:
// sqlite (default), postgres, mysql or memory. PropsType optionally
// moves the property store to redis.
type Store struct {
	Type string `envconfig:"STORE_TYPE" default:"sqlite"`
	Path string `envconfig:"STORE_PATH" default:"./data/audit.db"`
	// PostgreSQL settings
	Host     string `envconfig:"STORE_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"STORE_DB_PORT" default:"5432"`
	Name     string `envconfig:"STORE_DB_NAME" default:"meli_audit"`
	User     string `envconfig:"STORE_DB_USER" default:"postgres"`
	Password string `envconfig:"STORE_DB_PASS" default:""`
	SSLMode  string `envconfig:"STORE_DB_SSLMODE" default:"disable"`
	// Property store backend: db (same as Store.Type) or redis
	PropsType     string `envconfig:"PROPS_TYPE" default:"db"`
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// Queue holds notification queue limits.
type Queue struct {
	MaxSize          int           `envconfig:"QUEUE_MAX_SIZE" default:"1000"`
	MaxProcessedIDs  int           `envconfig:"QUEUE_MAX_PROCESSED_IDS" default:"5000"`
	ArchiveThreshold int           `envconfig:"QUEUE_ARCHIVE_THRESHOLD" default:"500"`
	Expiry           time.Duration `envconfig:"QUEUE_EXPIRY" default:"720h"` // 30 days
	MaxAttempts      int           `envconfig:"QUEUE_MAX_ATTEMPTS" default:"3"`
	DrainInterval    time.Duration `envconfig:"QUEUE_DRAIN_INTERVAL" default:"1m"`
}

// Audit holds full-audit scanner tuning.
type Audit struct {
	PageSize      int           `envconfig:"AUDIT_PAGE_SIZE" default:"100"`
	Budget        time.Duration `envconfig:"AUDIT_BUDGET" default:"270s"`
	OrderLookback time.Duration `envconfig:"AUDIT_ORDER_LOOKBACK" default:"15m"`
	LogRetention  time.Duration `envconfig:"AUDIT_LOG_RETENTION" default:"2160h"` // 90 days
	MaintInterval time.Duration `envconfig:"AUDIT_MAINT_INTERVAL" default:"24h"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *Store) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, s.Port, s.Name, s.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (s *Store) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		s.User, s.Password, s.Host, s.Port, s.Name)
}

// RedisAddress returns the Redis address in host:port format.
func (s *Store) RedisAddress() string {
	return fmt.Sprintf("%s:%d", s.RedisHost, s.RedisPort)
}

// Address returns the server address in host:port format.
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsDevelopment returns true if running in development mode.
func (a *App) IsDevelopment() bool {
	return a.Environment == "development"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
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
