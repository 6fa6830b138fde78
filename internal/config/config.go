package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Engine       EngineConfig
	Analysis     AnalysisConfig
	Query        QueryConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// EngineConfig points at the analysis engine.
type EngineConfig struct {
	BaseURL        string
	TimeoutSeconds int
	// ConfidenceFloor is the minimum overall confidence for a decision to
	// land in WAITING_CONFIRM instead of MANUAL_REQUIRED.
	ConfidenceFloor float64
}

// AnalysisConfig controls the dispatch worker pool and the reconciliation
// sweep for tickets stuck in ANALYZING.
type AnalysisConfig struct {
	PoolSize             int
	SweepIntervalSeconds int
	StuckDeadlineSeconds int
}

// QueryConfig controls listing defaults.
type QueryConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	confidenceFloor, err := strconv.ParseFloat(getEnv("ENGINE_CONFIDENCE_FLOOR", "0.7"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ENGINE_CONFIDENCE_FLOOR: %w", err)
	}
	if confidenceFloor < 0 || confidenceFloor > 1 {
		return nil, fmt.Errorf("ENGINE_CONFIDENCE_FLOOR out of range: %v", confidenceFloor)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "voc-auto-processing"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Engine: EngineConfig{
			BaseURL:         getEnv("ENGINE_BASE_URL", ""),
			TimeoutSeconds:  getEnvAsInt("ENGINE_TIMEOUT_SECONDS", 60),
			ConfidenceFloor: confidenceFloor,
		},
		Analysis: AnalysisConfig{
			PoolSize:             getEnvAsInt("ANALYSIS_POOL_SIZE", 16),
			SweepIntervalSeconds: getEnvAsInt("ANALYSIS_SWEEP_INTERVAL_SECONDS", 60),
			StuckDeadlineSeconds: getEnvAsInt("ANALYSIS_STUCK_DEADLINE_SECONDS", 300),
		},
		Query: QueryConfig{
			DefaultPageSize: getEnvAsInt("QUERY_DEFAULT_PAGE_SIZE", 20),
			MaxPageSize:     getEnvAsInt("QUERY_MAX_PAGE_SIZE", 100),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", ""),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the engine call timeout.
func (e EngineConfig) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// SweepInterval returns the reconciliation sweep period.
func (a AnalysisConfig) SweepInterval() time.Duration {
	return time.Duration(a.SweepIntervalSeconds) * time.Second
}

// StuckDeadline returns how long a ticket may sit in ANALYZING before the
// sweep re-dispatches it.
func (a AnalysisConfig) StuckDeadline() time.Duration {
	return time.Duration(a.StuckDeadlineSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
