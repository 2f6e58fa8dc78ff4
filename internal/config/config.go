package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Store selection
	Store StoreConfig

	// PostgreSQL configuration
	Database DatabaseConfig

	// MongoDB configuration
	Mongo MongoConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Stripe configuration
	Stripe StripeConfig

	// Redis configuration (webhook event dedupe)
	Redis RedisConfig

	// RabbitMQ configuration (booking events)
	RabbitMQ RabbitMQConfig

	// Admission retry configuration
	Admission AdmissionConfig

	// Pending hold expiry configuration
	Holds HoldConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// StoreConfig selects the booking store driver
type StoreConfig struct {
	Driver      string // postgres, mongo, memory
	AutoMigrate bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// MongoConfig holds MongoDB configuration
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// JWTConfig holds JWT validation configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// StripeConfig holds Stripe checkout configuration
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Currency      string
}

// Enabled reports whether Stripe checkout is configured
func (c StripeConfig) Enabled() bool {
	return c.SecretKey != ""
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	DedupTTL time.Duration
}

// Enabled reports whether Redis is configured
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// RabbitMQConfig holds RabbitMQ configuration
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// Enabled reports whether RabbitMQ is configured
func (c RabbitMQConfig) Enabled() bool {
	return c.URL != ""
}

// AdmissionConfig holds retry settings for transient store failures
type AdmissionConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HoldConfig holds pending booking expiry settings
type HoldConfig struct {
	PendingTTL time.Duration // lifetime of bookings created with hold=true
	SweepSpec  string        // cron spec with seconds
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
		Store: StoreConfig{
			Driver:      strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
			AutoMigrate: getEnvAsBool("STORE_AUTO_MIGRATE", true),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Mongo: MongoConfig{
			URI:            getEnv("MONGO_URI", ""),
			Database:       getEnv("MONGO_DATABASE", "tours"),
			ConnectTimeout: time.Duration(getEnvAsInt("MONGO_CONNECT_TIMEOUT", 10)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:    getEnv("STRIPE_SUCCESS_URL", "http://localhost:3000/checkout/success"),
			CancelURL:     getEnv("STRIPE_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
			Currency:      strings.ToLower(getEnv("STRIPE_CURRENCY", "usd")),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			DedupTTL: time.Duration(getEnvAsInt("REDIS_DEDUP_TTL_HOURS", 72)) * time.Hour,
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Exchange: getEnv("RABBITMQ_EXCHANGE", "bookings"),
		},
		Admission: AdmissionConfig{
			MaxRetries:      getEnvAsInt("ADMISSION_MAX_RETRIES", 3),
			InitialInterval: time.Duration(getEnvAsInt("ADMISSION_RETRY_INITIAL_MS", 100)) * time.Millisecond,
			MaxInterval:     time.Duration(getEnvAsInt("ADMISSION_RETRY_MAX_MS", 2000)) * time.Millisecond,
		},
		Holds: HoldConfig{
			PendingTTL: time.Duration(getEnvAsInt("PENDING_HOLD_TTL_MINUTES", 30)) * time.Minute,
			SweepSpec:  getEnv("PENDING_HOLD_SWEEP_SPEC", "0 */5 * * * *"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreDriverMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo store")
		}
		if c.Mongo.Database == "" {
			return fmt.Errorf("MONGO_DATABASE is required for the mongo store")
		}
	case StoreDriverMemory:
		if c.Server.Environment == "production" {
			return fmt.Errorf("memory store cannot be used in production")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %s (must be 'postgres', 'mongo' or 'memory')", c.Store.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Stripe.Enabled() && c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}

	if c.Admission.MaxRetries < 0 {
		return fmt.Errorf("ADMISSION_MAX_RETRIES cannot be negative")
	}

	if c.Holds.PendingTTL <= 0 {
		return fmt.Errorf("PENDING_HOLD_TTL_MINUTES must be positive")
	}

	return nil
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
