package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App           AppConfig
	HTTP          ServerConfig
	MySQL         MySQLConfig
	Redis         RedisConfig
	Log           LogConfig
	Stripe        StripeConfig
	Permits       PermitsConfig
	Jobs          JobsConfig
	Notifications NotificationsConfig
	DocGen        DocGenConfig
}

type AppConfig struct {
	ServiceName string
	APIKey      string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level string
}

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

type PermitsConfig struct {
	MaxRetries          int32
	StuckAfter          time.Duration
	ReconcileBatchSize  int32
	SweepBatchSize      int32
	GatewayTimeout      time.Duration
	GatewayConcurrency  int
	EstimatedJobMinutes int32
	LockTTL             time.Duration
}

type JobsConfig struct {
	ReconcileInterval time.Duration
	SweepInterval     time.Duration
}

type NotificationsConfig struct {
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
}

type DocGenConfig struct {
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "permits-service"),
			APIKey:      getEnv("APP_API_KEY", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Stripe: StripeConfig{
			SecretKey:                 getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:             getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SignatureToleranceSeconds: int64(getIntEnv("STRIPE_SIGNATURE_TOLERANCE_SECONDS", 300)),
			HTTPTimeout:               getSecondsEnv("STRIPE_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Permits: PermitsConfig{
			MaxRetries:          int32(getIntEnv("PERMITS_GENERATION_MAX_RETRIES", 3)),
			StuckAfter:          getMinutesEnv("PERMITS_GENERATION_STUCK_AFTER_MINUTES", 15*time.Minute),
			ReconcileBatchSize:  int32(getIntEnv("PERMITS_RECONCILE_BATCH_SIZE", 100)),
			SweepBatchSize:      int32(getIntEnv("PERMITS_SWEEP_BATCH_SIZE", 100)),
			GatewayTimeout:      getSecondsEnv("PERMITS_GATEWAY_TIMEOUT_SECONDS", 10*time.Second),
			GatewayConcurrency:  getIntEnv("PERMITS_GATEWAY_CONCURRENCY", 4),
			EstimatedJobMinutes: int32(getIntEnv("PERMITS_ESTIMATED_JOB_MINUTES", 3)),
			LockTTL:             getMinutesEnv("PERMITS_RUN_LOCK_TTL_MINUTES", 5*time.Minute),
		},
		Jobs: JobsConfig{
			ReconcileInterval: getMinutesEnv("PERMITS_RECONCILE_INTERVAL_MINUTES", 2*time.Minute),
			SweepInterval:     getMinutesEnv("PERMITS_SWEEP_INTERVAL_MINUTES", 5*time.Minute),
		},
		Notifications: NotificationsConfig{
			BaseURL:     getEnv("NOTIFICATIONS_BASE_URL", ""),
			APIKey:      getEnv("NOTIFICATIONS_API_KEY", ""),
			HTTPTimeout: getSecondsEnv("NOTIFICATIONS_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		DocGen: DocGenConfig{
			BaseURL:     getEnv("DOCGEN_BASE_URL", ""),
			APIKey:      getEnv("DOCGEN_API_KEY", ""),
			HTTPTimeout: getSecondsEnv("DOCGEN_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
