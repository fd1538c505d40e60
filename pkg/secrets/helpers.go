package secrets

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadString loads a secret, returning fallback when it is missing
func LoadString(ctx context.Context, m Manager, key, fallback string) string {
	value, err := m.GetSecret(ctx, key)
	if err != nil || value == "" {
		return fallback
	}
	return value
}

// LoadStringRequired loads a required secret (fails if not found)
func LoadStringRequired(ctx context.Context, m Manager, key string) (string, error) {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		return "", fmt.Errorf("required secret %s not found: %w", key, err)
	}
	if value == "" {
		return "", fmt.Errorf("required secret %s is empty", key)
	}
	return value, nil
}

// CommonSecrets holds the secrets the API server needs at startup. Values
// stored with Cipher.Encrypt are decrypted with the key from ENCRYPTION_KEY.
type CommonSecrets struct {
	JWTSecret      string
	DatabaseURL    string
	RedisURL       string
	SendGridAPIKey string
	AMQPURL        string
	Cipher         *Cipher
}

// LoadCommonSecrets loads all common secrets from the manager
func LoadCommonSecrets(ctx context.Context, m Manager) (*CommonSecrets, error) {
	s := &CommonSecrets{}

	if key := LoadString(ctx, m, "ENCRYPTION_KEY", ""); key != "" {
		c, err := NewCipher(key)
		if err != nil {
			return nil, err
		}
		s.Cipher = c
	}

	required := []struct {
		key  string
		dest *string
	}{
		{"JWT_SECRET", &s.JWTSecret},
		{"DATABASE_URL", &s.DatabaseURL},
	}
	for _, r := range required {
		v, err := LoadStringRequired(ctx, m, r.key)
		if err != nil {
			return nil, err
		}
		if *r.dest, err = ResolveValue(s.Cipher, v); err != nil {
			return nil, fmt.Errorf("%s: %w", r.key, err)
		}
	}

	optional := []struct {
		key  string
		dest *string
	}{
		{"REDIS_URL", &s.RedisURL},
		{"SENDGRID_API_KEY", &s.SendGridAPIKey},
		{"AMQP_URL", &s.AMQPURL},
	}
	for _, o := range optional {
		v, err := ResolveValue(s.Cipher, LoadString(ctx, m, o.key, ""))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", o.key, err)
		}
		*o.dest = v
	}

	return s, nil
}

// AutoDetectBackend determines the secrets backend from environment
func AutoDetectBackend() string {
	if getEnvBool("AWS_SECRETS_MANAGER_ENABLED") {
		return "aws-secrets-manager"
	}

	// Running inside AWS (ECS/Lambda set AWS_EXECUTION_ENV)
	if os.Getenv("AWS_REGION") != "" && os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "aws-secrets-manager"
	}

	return "env"
}

// AutoDetectConfig creates a config with auto-detected backend
func AutoDetectConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = AutoDetectBackend()
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}
	if d, err := time.ParseDuration(os.Getenv("SECRETS_CACHE_DURATION")); err == nil {
		cfg.CacheDuration = d
	}
	return cfg
}

func getEnvBool(key string) bool {
	parsed, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && parsed
}
