package encryption

import (
	"fmt"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/value"
)

// FactorCrypto applies the encrypt method of each topic factor to rows.
type FactorCrypto struct {
	ciphers map[model.EncryptMethod]Encryptor
}

// NewFactorCrypto builds the AES and ChaCha20 ciphers from cfg.
func NewFactorCrypto(cfg Config) (*FactorCrypto, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fc := &FactorCrypto{ciphers: make(map[model.EncryptMethod]Encryptor, 2)}
	if cfg.Key == "" {
		return fc, nil
	}
	aes, err := New(cfg.Key, WithAlgorithm(AlgorithmAESGCM))
	if err != nil {
		return nil, err
	}
	chacha, err := New(cfg.Key, WithAlgorithm(AlgorithmChaCha20))
	if err != nil {
		return nil, err
	}
	fc.ciphers[model.EncryptAES256] = aes
	fc.ciphers[model.EncryptChaCha20] = chacha
	return fc, nil
}

// Encrypt returns a copy of row with every encrypted factor sealed or masked.
// Nil values are left alone.
func (fc *FactorCrypto) Encrypt(topic *model.Topic, row map[string]any) (map[string]any, error) {
	factors := topic.EncryptedFactors()
	if len(factors) == 0 || row == nil {
		return row, nil
	}
	out := value.CopyMap(row)
	for _, f := range factors {
		raw, ok := out[f.Name]
		if !ok || raw == nil {
			continue
		}
		sealed, err := fc.encryptValue(f.Encrypt, value.ToString(raw))
		if err != nil {
			return nil, apperrors.Encryption(f.Name, err)
		}
		out[f.Name] = sealed
	}
	return out, nil
}

// Decrypt returns a copy of row with reversible factors opened. Masked
// factors cannot be restored and are returned as stored.
func (fc *FactorCrypto) Decrypt(topic *model.Topic, row map[string]any) (map[string]any, error) {
	factors := topic.EncryptedFactors()
	if len(factors) == 0 || row == nil {
		return row, nil
	}
	out := value.CopyMap(row)
	for _, f := range factors {
		if !f.Encrypt.IsReversible() {
			continue
		}
		raw, ok := out[f.Name].(string)
		if !ok {
			continue
		}
		opened, err := fc.DecryptValue(f.Encrypt, raw)
		if err != nil {
			return nil, apperrors.Encryption(f.Name, err)
		}
		out[f.Name] = opened
	}
	return out, nil
}

// DecryptValue opens a single value sealed with method.
func (fc *FactorCrypto) DecryptValue(method model.EncryptMethod, s string) (string, error) {
	c, ok := fc.ciphers[method]
	if !ok {
		return "", fmt.Errorf("no key configured for %s", method)
	}
	return c.Decrypt(s)
}

func (fc *FactorCrypto) encryptValue(method model.EncryptMethod, s string) (string, error) {
	switch method {
	case model.EncryptMaskMail:
		return MaskMail(s), nil
	case model.EncryptMaskCenter3:
		return MaskCenter3(s), nil
	case model.EncryptMaskLast6:
		return MaskLast6(s), nil
	case model.EncryptAES256, model.EncryptChaCha20:
		c, ok := fc.ciphers[method]
		if !ok {
			return "", fmt.Errorf("no key configured for %s", method)
		}
		return c.Encrypt(s)
	}
	return "", fmt.Errorf("unsupported encrypt method %q", method)
}
