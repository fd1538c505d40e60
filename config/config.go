package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jordanlanch/campaigndesk/pkg/secrets"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// API
	APIHost        string
	APIPort        string
	APIEnvironment string
	FrontendURL    string
	CORSOrigins    []string
	Timezone       string

	// Database
	DatabaseDriver    string
	DatabaseURL       string
	DBSSLMode         string
	DBSSLCertPath     string
	DBSSLKeyPath      string
	DBSSLRootCertPath string

	// Redis (optional; empty disables caching, token blacklist and password reset)
	RedisURL string

	// JWT and sessions
	JWTSecret          string
	JWTExpirationHours int
	SessionTTL         time.Duration
	RememberTTL        time.Duration
	IdleTimeout        time.Duration
	IdleWarning        time.Duration
	SecureCookies      bool

	// Cipher decrypts enc: values and seals channel credentials; nil when
	// ENCRYPTION_KEY is unset
	Cipher *secrets.Cipher

	// Email
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string

	// Message broker
	AMQPURL      string
	AMQPExchange string

	// History archive
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	ArchiveS3Bucket    string
	ArchiveS3Prefix    string

	// Rate limiting
	RateLimitRequestsPerMinute int
	RateLimitBurst             int

	// Logging
	LogLevel string

	// Sentry
	SentryDSN         string
	SentryEnvironment string
}

// Load reads the environment, optionally seeded from a .env file, and
// resolves the secret values through the configured secrets backend.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️  No .env file found, relying on OS environment variables")
	}

	cfg := &Config{
		APIHost:        getEnv("API_HOST", "0.0.0.0"),
		APIPort:        getEnv("API_PORT", "8080"),
		APIEnvironment: getEnv("API_ENVIRONMENT", "development"),
		FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:3000"),
		CORSOrigins:    getEnvList("CORS_ORIGINS"),
		Timezone:       getEnv("TIMEZONE", "Asia/Seoul"),

		DatabaseDriver:    getEnv("DATABASE_DRIVER", "postgres"),
		DBSSLMode:         getEnv("DB_SSL_MODE", ""),
		DBSSLCertPath:     getEnv("DB_SSL_CERT_PATH", ""),
		DBSSLKeyPath:      getEnv("DB_SSL_KEY_PATH", ""),
		DBSSLRootCertPath: getEnv("DB_SSL_ROOT_CERT_PATH", ""),

		JWTExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		SessionTTL:         getEnvAsDuration("SESSION_TTL", 8*time.Hour),
		RememberTTL:        getEnvAsDuration("SESSION_REMEMBER_TTL", 30*24*time.Hour),
		IdleTimeout:        getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		IdleWarning:        getEnvAsDuration("SESSION_IDLE_WARNING", 5*time.Minute),

		EmailFrom:     getEnv("EMAIL_FROM", "noreply@campaigndesk.local"),
		EmailFromName: getEnv("EMAIL_FROM_NAME", "CampaignDesk"),

		AMQPExchange: getEnv("AMQP_EXCHANGE", "campaign.events"),

		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSRegion:          getEnv("AWS_REGION", "ap-northeast-2"),
		ArchiveS3Bucket:    getEnv("ARCHIVE_S3_BUCKET", ""),
		ArchiveS3Prefix:    getEnv("ARCHIVE_S3_PREFIX", "campaign-history"),

		RateLimitRequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 120),
		RateLimitBurst:             getEnvAsInt("RATE_LIMIT_BURST", 20),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		SentryDSN:         getEnv("SENTRY_DSN", ""),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", getEnv("API_ENVIRONMENT", "development")),
	}
	cfg.SecureCookies = getEnvAsBool("SECURE_COOKIES", cfg.IsProduction())

	manager, err := secrets.NewManager(secrets.AutoDetectConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secrets manager: %w", err)
	}
	defer manager.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	common, err := secrets.LoadCommonSecrets(ctx, manager)
	if err != nil {
		return nil, err
	}
	cfg.JWTSecret = common.JWTSecret
	cfg.DatabaseURL = common.DatabaseURL
	cfg.RedisURL = common.RedisURL
	cfg.SendGridAPIKey = common.SendGridAPIKey
	cfg.AMQPURL = common.AMQPURL
	cfg.Cipher = common.Cipher

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	if len(c.JWTSecret) < 32 && c.IsProduction() {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if c.IdleWarning >= c.IdleTimeout {
		return fmt.Errorf("SESSION_IDLE_WARNING (%s) must be shorter than SESSION_IDLE_TIMEOUT (%s)", c.IdleWarning, c.IdleTimeout)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// IsProduction reports whether the API runs in production
func (c *Config) IsProduction() bool {
	return c.APIEnvironment == "production"
}

// Location returns the business timezone used for date filters and schedules
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ArchiveEnabled reports whether monthly history archives can be uploaded
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveS3Bucket != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
