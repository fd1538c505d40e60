package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// Prefix marks a value produced by Cipher.Encrypt
const Prefix = "enc:v1:"

const (
	saltSize = 16
	keySize  = 32

	// scrypt cost parameters; see the x/crypto/scrypt recommendations for interactive use
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var (
	// ErrNoKey is returned when an encrypted value is met without a configured key
	ErrNoKey = errors.New("secrets: value is encrypted but no encryption key is configured")
	// ErrMalformed is returned for values that carry the prefix but cannot be decoded
	ErrMalformed = errors.New("secrets: malformed encrypted value")
)

// Cipher encrypts short values with AES-256-GCM. Each value gets its own
// random salt, from which the key is derived with scrypt, and its own nonce.
type Cipher struct {
	passphrase []byte
	rand       io.Reader
}

// NewCipher creates a cipher from a passphrase
func NewCipher(passphrase string) (*Cipher, error) {
	if len(passphrase) < 16 {
		return nil, fmt.Errorf("secrets: passphrase must be at least 16 characters")
	}
	return &Cipher{passphrase: []byte(passphrase), rand: rand.Reader}, nil
}

// IsEncrypted reports whether v carries the encrypted-value prefix
func IsEncrypted(v string) bool {
	return strings.HasPrefix(v, Prefix)
}

// Encrypt returns Prefix followed by base64(salt | nonce | ciphertext)
func (c *Cipher) Encrypt(plain string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(c.rand, salt); err != nil {
		return "", fmt.Errorf("secrets: failed to generate salt: %w", err)
	}
	aead, err := c.aead(salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("secrets: failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, []byte(plain), []byte(Prefix))
	return Prefix + base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. A wrong passphrase or tampered value fails
// authentication and returns an error.
func (c *Cipher) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return "", ErrMalformed
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil || len(raw) < saltSize {
		return "", ErrMalformed
	}
	aead, err := c.aead(raw[:saltSize])
	if err != nil {
		return "", err
	}
	rest := raw[saltSize:]
	if len(rest) < aead.NonceSize()+aead.Overhead() {
		return "", ErrMalformed
	}
	nonce, sealed := rest[:aead.NonceSize()], rest[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, []byte(Prefix))
	if err != nil {
		return "", fmt.Errorf("secrets: failed to decrypt value: %w", err)
	}
	return string(plain), nil
}

func (c *Cipher) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(c.passphrase, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("secrets: failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// ResolveValue decrypts encrypted values and passes plaintext through unchanged.
// c may be nil when no value is encrypted.
func ResolveValue(c *Cipher, value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	if c == nil {
		return "", ErrNoKey
	}
	return c.Decrypt(value)
}
