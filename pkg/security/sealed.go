package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/megahubhq/megahub-backend/pkg/config"
)

// Sealer encrypts and decrypts stored third-party credentials with AES-GCM.
// The configured key string is stretched to 32 bytes with SHA-256 so any
// non-empty key material works.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer from the credentials config.
func NewSealer(cfg config.CredentialsConfig) (*Sealer, error) {
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("credential encryption key is required")
	}

	key := sha256.Sum256([]byte(cfg.EncryptionKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext and returns nonce||ciphertext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("plaintext cannot be empty")
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a sealed value produced by Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize() {
		return nil, fmt.Errorf("sealed value too short")
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed value: %w", err)
	}
	return plaintext, nil
}

// Hint returns the trailing characters of a secret for display, e.g. "…a4f9".
func Hint(secret string) string {
	const visible = 4
	if len(secret) <= visible {
		return secret
	}
	return secret[len(secret)-visible:]
}
