package secrets

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passphrase = "correct-horse-battery-staple"

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher(passphrase)
	require.NoError(t, err)

	for _, plain := range []string{"", "postgres://user:pw@db/campaigns", "카카오 알림톡 API 키"} {
		enc, err := c.Encrypt(plain)
		require.NoError(t, err)
		assert.True(t, IsEncrypted(enc))
		if plain != "" {
			assert.NotContains(t, enc, plain)
		}

		got, err := c.Decrypt(enc)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestCipher_SaltedPerValue(t *testing.T) {
	c, err := NewCipher(passphrase)
	require.NoError(t, err)

	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCipher_Rejects(t *testing.T) {
	c, err := NewCipher(passphrase)
	require.NoError(t, err)
	enc, err := c.Encrypt("sendgrid-key")
	require.NoError(t, err)

	other, err := NewCipher("a-different-passphrase")
	require.NoError(t, err)
	_, err = other.Decrypt(enc)
	assert.Error(t, err, "wrong key fails authentication")

	raw := []byte(enc)
	raw[len(raw)-3] ^= 0x01
	_, err = c.Decrypt(string(raw))
	assert.Error(t, err, "tampered value")

	_, err = c.Decrypt("plaintext")
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = c.Decrypt(Prefix + "!!!")
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = c.Decrypt(Prefix + "AAAA")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = NewCipher("short")
	assert.Error(t, err)
}

func TestResolveValue(t *testing.T) {
	c, err := NewCipher(passphrase)
	require.NoError(t, err)
	enc, err := c.Encrypt("s3cret")
	require.NoError(t, err)

	v, err := ResolveValue(c, enc)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	v, err = ResolveValue(nil, "plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", v)

	_, err = ResolveValue(nil, enc)
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestEnvironmentManager(t *testing.T) {
	t.Setenv("CAMPAIGNDESK_TEST_SECRET", "v1")
	t.Setenv("CAMPAIGNDESK_TEST_JSON", `{"user":"admin","port":5432}`)
	ctx := context.Background()

	m := NewEnvironmentManager(Config{CacheDuration: time.Minute})

	v, err := m.GetSecret(ctx, "CAMPAIGNDESK_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	t.Setenv("CAMPAIGNDESK_TEST_SECRET", "v2")
	v, _ = m.GetSecret(ctx, "CAMPAIGNDESK_TEST_SECRET")
	assert.Equal(t, "v1", v, "served from cache")

	require.NoError(t, m.RefreshCache(ctx))
	v, _ = m.GetSecret(ctx, "CAMPAIGNDESK_TEST_SECRET")
	assert.Equal(t, "v2", v)

	var dest struct {
		User string `json:"user"`
		Port int    `json:"port"`
	}
	require.NoError(t, m.GetSecretJSON(ctx, "CAMPAIGNDESK_TEST_JSON", &dest))
	assert.Equal(t, 5432, dest.Port)

	_, err = m.GetSecret(ctx, "CAMPAIGNDESK_TEST_MISSING")
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeSecretsManager struct {
	secretsmanageriface.SecretsManagerAPI
	values map[string]string
	calls  int
}

func (f *fakeSecretsManager) GetSecretValueWithContext(_ aws.Context, in *secretsmanager.GetSecretValueInput, _ ...request.Option) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	v, ok := f.values[*in.SecretId]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestAWSSecretsManager_Caches(t *testing.T) {
	fake := &fakeSecretsManager{values: map[string]string{"JWT_SECRET": "from-aws"}}
	m := NewAWSSecretsManager(fake, Config{CacheDuration: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := m.GetSecret(ctx, "JWT_SECRET")
		require.NoError(t, err)
		assert.Equal(t, "from-aws", v)
	}
	assert.Equal(t, 1, fake.calls)

	require.NoError(t, m.RefreshCache(ctx))
	_, err := m.GetSecret(ctx, "JWT_SECRET")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)

	_, err = m.GetSecret(ctx, "MISSING")
	assert.Error(t, err)
}

func TestLoadCommonSecrets_DecryptsValues(t *testing.T) {
	c, err := NewCipher(passphrase)
	require.NoError(t, err)
	encDB, err := c.Encrypt("postgres://campaign:pw@localhost/campaigns")
	require.NoError(t, err)

	fake := &fakeSecretsManager{values: map[string]string{
		"ENCRYPTION_KEY": passphrase,
		"JWT_SECRET":     "jwt",
		"DATABASE_URL":   encDB,
		"REDIS_URL":      "redis://localhost:6379/0",
	}}
	s, err := LoadCommonSecrets(context.Background(), NewAWSSecretsManager(fake, Config{}))
	require.NoError(t, err)

	assert.Equal(t, "postgres://campaign:pw@localhost/campaigns", s.DatabaseURL)
	assert.Equal(t, "redis://localhost:6379/0", s.RedisURL)
	assert.Empty(t, s.SendGridAPIKey)
	assert.NotNil(t, s.Cipher)
}

func TestLoadCommonSecrets_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := LoadCommonSecrets(ctx, NewAWSSecretsManager(&fakeSecretsManager{values: map[string]string{}}, Config{}))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "JWT_SECRET"))

	c, _ := NewCipher(passphrase)
	enc, _ := c.Encrypt("x")
	_, err = LoadCommonSecrets(ctx, NewAWSSecretsManager(&fakeSecretsManager{values: map[string]string{
		"JWT_SECRET": "jwt", "DATABASE_URL": enc,
	}}, Config{}))
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestAutoDetectConfig(t *testing.T) {
	t.Setenv("AWS_SECRETS_MANAGER_ENABLED", "")
	t.Setenv("AWS_EXECUTION_ENV", "")
	t.Setenv("AWS_REGION", "")
	assert.Equal(t, "env", AutoDetectConfig().Backend)

	t.Setenv("AWS_SECRETS_MANAGER_ENABLED", "true")
	t.Setenv("AWS_REGION", "us-west-2")
	cfg := AutoDetectConfig()
	assert.Equal(t, "aws-secrets-manager", cfg.Backend)
	assert.Equal(t, "us-west-2", cfg.AWSRegion)
}
