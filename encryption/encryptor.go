package encryption

import "fmt"

// Encryptor defines symmetric encryption of factor values.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Algorithm represents supported encryption algorithms.
type Algorithm string

const (
	// AlgorithmAESGCM is AES-256-GCM (default).
	AlgorithmAESGCM Algorithm = "aes-256-gcm"

	// AlgorithmChaCha20 is ChaCha20-Poly1305.
	AlgorithmChaCha20 Algorithm = "chacha20-poly1305"
)

// Option configures New.
type Option func(*options)

type options struct {
	algorithm Algorithm
}

// WithAlgorithm selects the encryption algorithm (default: AES-256-GCM).
func WithAlgorithm(alg Algorithm) Option {
	return func(o *options) { o.algorithm = alg }
}

// New creates an Encryptor with the given key. The key is hashed to the
// length the algorithm requires.
func New(key string, opts ...Option) (Encryptor, error) {
	o := &options{algorithm: AlgorithmAESGCM}
	for _, opt := range opts {
		opt(o)
	}

	switch o.algorithm {
	case AlgorithmAESGCM:
		return NewAESGCM(key)
	case AlgorithmChaCha20:
		return NewChaCha20(key)
	}
	return nil, fmt.Errorf("unsupported encryption algorithm %q", o.algorithm)
}

// Config holds the factor encryption settings.
type Config struct {
	// Key is the passphrase both AEAD ciphers derive their keys from.
	// Without a key only mask methods are available.
	Key string `yaml:"key" mapstructure:"key"`
	// MinKeyLength rejects short passphrases when a key is set.
	MinKeyLength int `yaml:"min_key_length" mapstructure:"min_key_length"`
}

// ApplyDefaults applies default values.
func (c *Config) ApplyDefaults() {
	if c.MinKeyLength == 0 {
		c.MinKeyLength = 8
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Key != "" && len(c.Key) < c.MinKeyLength {
		return fmt.Errorf("encryption.key must be at least %d characters", c.MinKeyLength)
	}
	return nil
}
