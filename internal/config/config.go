package config

import (
	"os"
	"strconv"
	"time"

	"tessera/internal/cache"
	"tessera/internal/database"
	"tessera/internal/external"
	"tessera/internal/messaging"
	"tessera/internal/search"
)

// Config holds the full application configuration, loaded from environment
// variables with development defaults.
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	Booking BookingConfig
	Sweep   SweepConfig
	Payment PaymentConfig

	Database      database.Config
	NATS          messaging.Config
	Redis         cache.Config
	Elasticsearch search.Config
	Capture       external.CaptureConfig
	Mail          external.MailConfig
}

// BookingConfig controls the reservation hold.
type BookingConfig struct {
	HoldTTL time.Duration
}

// SweepConfig controls the expiry sweeper.
type SweepConfig struct {
	Interval  time.Duration
	BatchSize int
}

// PaymentConfig covers the push-notification channel: the shared secret used
// to verify settlement signatures and the currency settlements must carry.
type PaymentConfig struct {
	WebhookSecret string
	Currency      string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		Booking: BookingConfig{
			HoldTTL: time.Duration(getEnvInt("BOOKING_HOLD_TTL_MIN", 15)) * time.Minute,
		},

		Sweep: SweepConfig{
			Interval:  time.Duration(getEnvInt("SWEEP_INTERVAL_SEC", 60)) * time.Second,
			BatchSize: getEnvInt("SWEEP_BATCH_SIZE", 200),
		},

		Payment: PaymentConfig{
			WebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			Currency:      getEnv("PAYMENT_CURRENCY", "USD"),
		},

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "tessera"),
			Password:           getEnv("DB_PASSWORD", "tessera123"),
			DBName:             getEnv("DB_NAME", "tessera"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		NATS: messaging.Config{
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "tessera"),
			ClientID:  getEnv("NATS_CLIENT_ID", "tessera-api"),
		},

		Redis: cache.Config{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      time.Duration(getEnvInt("REDIS_TTL_SEC", 5)) * time.Second,
		},

		Elasticsearch: search.Config{
			Enabled:   getEnv("ELASTICSEARCH_ENABLED", "false") == "true",
			Addresses: []string{getEnv("ELASTICSEARCH_URL", "http://localhost:9200")},
			Username:  getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:  getEnv("ELASTICSEARCH_PASSWORD", ""),
		},

		Capture: external.CaptureConfig{
			BaseURL:      getEnv("CAPTURE_BASE_URL", "https://api.sandbox.provider.example"),
			ClientID:     getEnv("CAPTURE_CLIENT_ID", ""),
			ClientSecret: getEnv("CAPTURE_CLIENT_SECRET", ""),
			Timeout:      time.Duration(getEnvInt("CAPTURE_TIMEOUT_SEC", 30)) * time.Second,
		},

		Mail: external.MailConfig{
			Enabled: getEnv("MAIL_ENABLED", "false") == "true",
			BaseURL: getEnv("MAIL_BASE_URL", "https://api.resend.com"),
			APIKey:  getEnv("MAIL_API_KEY", ""),
			From:    getEnv("MAIL_FROM", "tickets@tessera.local"),
			Timeout: time.Duration(getEnvInt("MAIL_TIMEOUT_SEC", 10)) * time.Second,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
