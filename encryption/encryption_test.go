package encryption

import (
	"strings"
	"testing"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/model"
)

func TestNew(t *testing.T) {
	for _, alg := range []Algorithm{AlgorithmAESGCM, AlgorithmChaCha20} {
		t.Run(string(alg), func(t *testing.T) {
			enc, err := New("test-key-123", WithAlgorithm(alg))
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if enc == nil {
				t.Fatal("expected non-nil encryptor")
			}
		})
	}

	if _, err := New("k", WithAlgorithm("rot13")); err == nil {
		t.Error("expected error for unsupported algorithm")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
	}{
		{"simple string", "hello world"},
		{"empty string", ""},
		{"special characters", "p@$$w0rd!#%^&*()"},
		{"unicode", "こんにちは世界"},
		{"json", `{"key":"value","num":42}`},
	}

	for _, alg := range []Algorithm{AlgorithmAESGCM, AlgorithmChaCha20} {
		enc, err := New("my-secret-key", WithAlgorithm(alg))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		for _, tc := range tests {
			t.Run(string(alg)+"/"+tc.name, func(t *testing.T) {
				encrypted, err := enc.Encrypt(tc.plaintext)
				if err != nil {
					t.Fatalf("Encrypt failed: %v", err)
				}
				if encrypted == tc.plaintext {
					t.Error("encrypted text should differ from plaintext")
				}
				decrypted, err := enc.Decrypt(encrypted)
				if err != nil {
					t.Fatalf("Decrypt failed: %v", err)
				}
				if decrypted != tc.plaintext {
					t.Errorf("expected %q, got %q", tc.plaintext, decrypted)
				}
			})
		}
	}
}

func TestEncryptProducesDifferentCiphertexts(t *testing.T) {
	enc, _ := NewAESGCM("key")
	a, _ := enc.Encrypt("same")
	b, _ := enc.Encrypt("same")
	if a == b {
		t.Error("random nonce should produce different ciphertexts")
	}
}

func TestEncryptSkipsSealedValues(t *testing.T) {
	enc, _ := NewChaCha20("key")
	sealed, err := enc.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(sealed, PrefixChaCha20) {
		t.Fatalf("expected %s prefix, got %q", PrefixChaCha20, sealed)
	}
	again, _ := enc.Encrypt(sealed)
	if again != sealed {
		t.Error("sealed value should not be sealed twice")
	}
}

func TestDecryptPlainValuePassesThrough(t *testing.T) {
	enc, _ := NewAESGCM("key")
	got, err := enc.Decrypt("legacy plain")
	if err != nil {
		t.Fatal(err)
	}
	if got != "legacy plain" {
		t.Errorf("got %q", got)
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	a, _ := NewAESGCM("key-one")
	b, _ := NewAESGCM("key-two")
	sealed, _ := a.Encrypt("payload")
	if _, err := b.Decrypt(sealed); err == nil {
		t.Error("expected error decrypting with wrong key")
	}
}

func TestDecryptInvalidInput(t *testing.T) {
	enc, _ := NewAESGCM("key")
	tests := []struct {
		name  string
		input string
	}{
		{"invalid base64", PrefixAES + "!!!not-base64"},
		{"too short", PrefixAES + "AAEC"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := enc.Decrypt(tc.input); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMasks(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"mail", MaskMail, "alice@example.com", "a****@example.com"},
		{"mail without at", MaskMail, "alice", "*****"},
		{"center3", MaskCenter3, "1234567", "12***67"},
		{"center3 short", MaskCenter3, "abc", "***"},
		{"last6", MaskLast6, "13800138000", "13800******"},
		{"last6 short", MaskLast6, "1234", "****"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fn(tc.in); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func testTopic() *model.Topic {
	return &model.Topic{
		TopicID: "t1",
		Name:    "customer",
		Factors: []model.Factor{
			{FactorID: "f1", Name: "name"},
			{FactorID: "f2", Name: "ssn", Encrypt: model.EncryptAES256},
			{FactorID: "f3", Name: "card", Encrypt: model.EncryptChaCha20},
			{FactorID: "f4", Name: "email", Encrypt: model.EncryptMaskMail},
			{FactorID: "f5", Name: "phone", Encrypt: model.EncryptMaskLast6},
		},
	}
}

func TestFactorCryptoRoundTrip(t *testing.T) {
	fc, err := NewFactorCrypto(Config{Key: "passphrase"})
	if err != nil {
		t.Fatalf("NewFactorCrypto failed: %v", err)
	}
	topic := testTopic()
	row := map[string]any{
		"name":  "alice",
		"ssn":   "123-45-6789",
		"card":  "4111111111111111",
		"email": "alice@example.com",
		"phone": "13800138000",
	}

	stored, err := fc.Encrypt(topic, row)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if row["ssn"] != "123-45-6789" {
		t.Error("input row must not be modified")
	}
	if stored["name"] != "alice" {
		t.Errorf("plain factor changed: %v", stored["name"])
	}
	if !strings.HasPrefix(stored["ssn"].(string), PrefixAES) {
		t.Errorf("ssn not sealed: %v", stored["ssn"])
	}
	if !strings.HasPrefix(stored["card"].(string), PrefixChaCha20) {
		t.Errorf("card not sealed: %v", stored["card"])
	}
	if stored["email"] != "a****@example.com" {
		t.Errorf("email = %v", stored["email"])
	}

	opened, err := fc.Decrypt(topic, stored)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if opened["ssn"] != "123-45-6789" || opened["card"] != "4111111111111111" {
		t.Errorf("unexpected decrypted row: %v", opened)
	}
	if opened["phone"] != "13800******" {
		t.Errorf("masked value should stay masked: %v", opened["phone"])
	}
}

func TestFactorCryptoWithoutKey(t *testing.T) {
	fc, err := NewFactorCrypto(Config{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = fc.Encrypt(testTopic(), map[string]any{"ssn": "1"})
	if !apperrors.IsCode(err, apperrors.ErrCodeEncryption) {
		t.Errorf("expected encryption error, got %v", err)
	}

	// masks need no key
	out, err := fc.Encrypt(testTopic(), map[string]any{"email": "bob@x.io", "ssn": nil})
	if err != nil {
		t.Fatal(err)
	}
	if out["email"] != "b**@x.io" {
		t.Errorf("email = %v", out["email"])
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if cfg.MinKeyLength != 8 {
		t.Errorf("default min key length = %d", cfg.MinKeyLength)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty key should be valid: %v", err)
	}
	cfg.Key = "short"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error")
	}
	if _, err := NewFactorCrypto(Config{Key: "abc"}); err == nil {
		t.Error("expected NewFactorCrypto to reject a short key")
	}
}
