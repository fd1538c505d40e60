package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
)

// ErrNotFound is returned when a backend has no value for a key
var ErrNotFound = errors.New("secret not found")

// Manager defines the interface for secrets management
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretJSON retrieves a secret and unmarshals it as JSON
	GetSecretJSON(ctx context.Context, key string, dest any) error

	// RefreshCache drops cached values so the next read hits the backend
	RefreshCache(ctx context.Context) error

	// Close closes any resources held by the manager
	Close() error
}

// Config holds secrets manager configuration
type Config struct {
	Backend       string        // "env" or "aws-secrets-manager"
	AWSRegion     string        // AWS region for Secrets Manager
	CacheDuration time.Duration // How long to cache secrets
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Backend:       "env",
		AWSRegion:     "ap-northeast-2",
		CacheDuration: 5 * time.Minute,
	}
}

// NewManager creates a new secrets manager based on configuration
func NewManager(cfg Config) (Manager, error) {
	switch cfg.Backend {
	case "aws-secrets-manager", "aws":
		log.Printf("🔐 Initializing AWS Secrets Manager (region: %s)", cfg.AWSRegion)
		sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.AWSRegion)})
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %w", err)
		}
		return NewAWSSecretsManager(secretsmanager.New(sess), cfg), nil
	case "env", "environment", "":
		log.Printf("🔐 Using environment variables for secrets (development mode)")
		return NewEnvironmentManager(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported secrets backend: %s", cfg.Backend)
	}
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

// ttlCache is shared by both backends
type ttlCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cachedSecret
	now     func() time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{ttl: ttl, entries: make(map[string]cachedSecret), now: time.Now}
}

func (c *ttlCache) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

func (c *ttlCache) set(key, value string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedSecret{value: value, expiresAt: c.now().Add(c.ttl)}
}

func (c *ttlCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedSecret)
}

func getJSON(ctx context.Context, m Manager, key string, dest any) error {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(value), dest); err != nil {
		return fmt.Errorf("secret %s is not valid JSON: %w", key, err)
	}
	return nil
}

// EnvironmentManager loads secrets from environment variables
type EnvironmentManager struct {
	cache *ttlCache
}

// NewEnvironmentManager creates a new environment-based secrets manager
func NewEnvironmentManager(cfg Config) *EnvironmentManager {
	return &EnvironmentManager{cache: newTTLCache(cfg.CacheDuration)}
}

// GetSecret retrieves a secret from environment variables
func (m *EnvironmentManager) GetSecret(_ context.Context, key string) (string, error) {
	if value, ok := m.cache.get(key); ok {
		return value, nil
	}
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	m.cache.set(key, value)
	return value, nil
}

// GetSecretJSON retrieves a secret and unmarshals it as JSON
func (m *EnvironmentManager) GetSecretJSON(ctx context.Context, key string, dest any) error {
	return getJSON(ctx, m, key, dest)
}

// RefreshCache clears the cache
func (m *EnvironmentManager) RefreshCache(context.Context) error {
	m.cache.clear()
	log.Printf("🔄 Environment secrets cache cleared")
	return nil
}

// Close is a no-op for environment manager
func (m *EnvironmentManager) Close() error {
	return nil
}

// AWSSecretsManager loads secrets from AWS Secrets Manager
type AWSSecretsManager struct {
	client secretsmanageriface.SecretsManagerAPI
	cache  *ttlCache
}

// NewAWSSecretsManager wraps a Secrets Manager client
func NewAWSSecretsManager(client secretsmanageriface.SecretsManagerAPI, cfg Config) *AWSSecretsManager {
	log.Printf("✅ AWS Secrets Manager initialized (cache duration: %s)", cfg.CacheDuration)
	return &AWSSecretsManager{client: client, cache: newTTLCache(cfg.CacheDuration)}
}

// GetSecret retrieves a secret from AWS Secrets Manager
func (m *AWSSecretsManager) GetSecret(ctx context.Context, key string) (string, error) {
	if value, ok := m.cache.get(key); ok {
		return value, nil
	}

	result, err := m.client.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", key, err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", key)
	}

	m.cache.set(key, *result.SecretString)
	log.Printf("✅ Loaded secret from AWS Secrets Manager: %s", key)
	return *result.SecretString, nil
}

// GetSecretJSON retrieves a secret and unmarshals it as JSON
func (m *AWSSecretsManager) GetSecretJSON(ctx context.Context, key string, dest any) error {
	return getJSON(ctx, m, key, dest)
}

// RefreshCache clears the cache
func (m *AWSSecretsManager) RefreshCache(context.Context) error {
	m.cache.clear()
	log.Printf("🔄 AWS Secrets Manager cache cleared")
	return nil
}

// Close is a no-op; AWS SDK sessions need no cleanup
func (m *AWSSecretsManager) Close() error {
	return nil
}
