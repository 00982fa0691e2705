package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/boxinggym/walkin-backend/pkg/payments"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Payment  PaymentConfig
	Redis    RedisConfig
	Booking  BookingConfig
	Security SecurityConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds the staff token configuration
type JWTConfig struct {
	Secret            string
	Issuer            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// PaymentConfig holds payment provider configuration
type PaymentConfig struct {
	Provider          string // "stripe" or "mock"
	StripeSecretKey   string // SECRET - never expose to client
	StripeWebhookKey  string // webhook signing secret from the Stripe dashboard
	MockWebhookSecret string
	Currency          string
}

// RedisConfig holds the realtime broker configuration. An empty URL disables realtime push.
type RedisConfig struct {
	URL           string
	ChannelPrefix string
	PoolSize      int
}

// BookingConfig holds booking lifecycle tunables
type BookingConfig struct {
	CashTimeout     time.Duration
	ExpirySweepSpec string // cron spec with seconds
	NoShowSweepSpec string
	SweepBatchSize  int
	Timezone        string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRequestLog bool
	EnableAuditLog   bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("STAFF_JWT_SECRET", ""),
			Issuer:            getEnv("STAFF_JWT_ISSUER", "walkin-backend"),
			AccessTokenExpiry: getEnvAsDuration("STAFF_JWT_EXPIRY", 12*time.Hour),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Payment: PaymentConfig{
			Provider:          getEnv("PAYMENT_PROVIDER", "mock"),
			StripeSecretKey:   getEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookKey:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
			MockWebhookSecret: getEnv("MOCK_WEBHOOK_SECRET", "dev-webhook-secret"),
			Currency:          strings.ToLower(getEnv("PAYMENT_CURRENCY", "gbp")),
		},
		Redis: RedisConfig{
			URL:           getEnv("REDIS_URL", ""),
			ChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "walkin:changes"),
			PoolSize:      getEnvAsInt("REDIS_POOL_SIZE", 10),
		},
		Booking: BookingConfig{
			CashTimeout:     getEnvAsDuration("CASH_PAYMENT_TIMEOUT", 5*time.Minute),
			ExpirySweepSpec: getEnv("CASH_EXPIRY_CRON", "0 * * * * *"),
			NoShowSweepSpec: getEnv("NO_SHOW_CRON", "0 30 23 * * *"),
			SweepBatchSize:  getEnvAsInt("SWEEP_BATCH_SIZE", 100),
			Timezone:        getEnv("GYM_TIMEZONE", "Europe/London"),
		},
		Security: SecurityConfig{
			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
			EnableAuditLog:   getEnvAsBool("ENABLE_AUDIT_LOGGING", true),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("STAFF_JWT_SECRET is required")
	}

	switch c.Payment.Provider {
	case "stripe":
		if c.Payment.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
		if c.Payment.StripeWebhookKey == "" {
			return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when PAYMENT_PROVIDER=stripe")
		}
		if strings.HasPrefix(c.Payment.StripeWebhookKey, payments.MockSecretPrefix) {
			return fmt.Errorf("STRIPE_WEBHOOK_SECRET holds a generated mock secret; use the signing secret from the Stripe dashboard")
		}
	case "mock":
		if c.Server.Environment == "production" {
			return fmt.Errorf("mock payment provider cannot be used in production")
		}
	default:
		return fmt.Errorf("invalid PAYMENT_PROVIDER: %s (must be 'stripe' or 'mock')", c.Payment.Provider)
	}

	if c.Booking.CashTimeout <= 0 {
		return fmt.Errorf("CASH_PAYMENT_TIMEOUT must be positive")
	}

	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("invalid GYM_TIMEZONE %q: %w", c.Booking.Timezone, err)
	}

	return nil
}

// Location returns the gym's local timezone. Validate guarantees it loads.
func (c BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go duration strings ("5m") or plain seconds ("300")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
