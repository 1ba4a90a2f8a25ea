package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Ciphertext prefixes identify the algorithm a stored value was sealed with.
const (
	PrefixAES      = "{AES}"
	PrefixChaCha20 = "{CHACHA}"
)

// AEAD seals values with an authenticated cipher and tags the base64
// ciphertext with a prefix. Values already carrying the prefix are not
// sealed twice.
type AEAD struct {
	aead   cipher.AEAD
	prefix string
}

func deriveKey(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}

// NewAESGCM creates an AES-256-GCM cipher keyed by the SHA-256 of key.
func NewAESGCM(key string) (*AEAD, error) {
	block, err := aes.NewCipher(deriveKey(key))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &AEAD{aead: gcm, prefix: PrefixAES}, nil
}

// NewChaCha20 creates a ChaCha20-Poly1305 cipher keyed by the SHA-256 of key.
func NewChaCha20(key string) (*AEAD, error) {
	aead, err := chacha20poly1305.New(deriveKey(key))
	if err != nil {
		return nil, fmt.Errorf("create chacha20: %w", err)
	}
	return &AEAD{aead: aead, prefix: PrefixChaCha20}, nil
}

// IsSealed reports whether s was produced by this cipher.
func (a *AEAD) IsSealed(s string) bool { return strings.HasPrefix(s, a.prefix) }

// Encrypt seals plaintext and returns the prefixed base64 result.
func (a *AEAD) Encrypt(plaintext string) (string, error) {
	if a.IsSealed(plaintext) {
		return plaintext, nil
	}
	nonce := make([]byte, a.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := a.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return a.prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a prefixed ciphertext. Values without the prefix are
// returned unchanged, since they were stored before encryption was enabled.
func (a *AEAD) Decrypt(ciphertext string) (string, error) {
	if !a.IsSealed(ciphertext) {
		return ciphertext, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, a.prefix))
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}
	nonceSize := a.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, body := data[:nonceSize], data[nonceSize:]
	plaintext, err := a.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
