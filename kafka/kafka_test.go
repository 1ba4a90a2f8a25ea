package kafka

import (
	"errors"
	"fmt"
	"net"
	"testing"

	kafkago "github.com/segmentio/kafka-go"

	apperrors "github.com/watchmen-go/kernel/errors"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Enabled: true}
	cfg.ApplyDefaults()

	if len(cfg.Brokers) != 1 || cfg.Brokers[0] != "localhost:9092" {
		t.Errorf("unexpected brokers %v", cfg.Brokers)
	}
	if cfg.Topic != "watchmen.pipeline.monitor" {
		t.Errorf("unexpected topic %q", cfg.Topic)
	}
	if cfg.RequiredAcks != -1 {
		t.Errorf("expected acks -1, got %d", cfg.RequiredAcks)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	base := func() Config {
		c := Config{Enabled: true}
		c.ApplyDefaults()
		return c
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no brokers", func(c *Config) { c.Brokers = nil }},
		{"bad timeout", func(c *Config) { c.WriteTimeout = "forever" }},
		{"bad sasl", func(c *Config) { c.EnableSASL = true; c.SASLMechanism = "GSSAPI"; c.Username = "u" }},
		{"sasl without user", func(c *Config) { c.EnableSASL = true; c.SASLMechanism = "PLAIN" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := (&Config{}).Validate(); err != nil {
		t.Errorf("disabled config should validate, got %v", err)
	}
}

func TestNewTransport(t *testing.T) {
	cfg := Config{Enabled: true, EnableSASL: true, Username: "u", Password: "p"}
	cfg.ApplyDefaults()
	tr, err := NewTransport(&cfg)
	if err != nil {
		t.Fatalf("NewTransport failed: %v", err)
	}
	if tr.SASL == nil {
		t.Error("expected SASL mechanism")
	}
	if tr.TLS != nil {
		t.Error("TLS should be off")
	}

	cfg.EnableTLS = true
	cfg.TLSCAFile = "/does/not/exist.pem"
	if _, err := NewTransport(&cfg); err == nil {
		t.Error("expected error for missing CA file")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassUnknown},
		{"size code", kafkago.MessageSizeTooLarge, ClassRejected},
		{"wrapped unknown topic code", fmt.Errorf("write: %w", kafkago.UnknownTopicOrPartition), ClassRejected},
		{"leader code", kafkago.LeaderNotAvailable, ClassTransient},
		{"timeout code", kafkago.RequestTimedOut, ClassTransient},
		{"batch takes worst", kafkago.WriteErrors{nil, kafkago.LeaderNotAvailable, kafkago.MessageSizeTooLarge}, ClassRejected},
		{"dial failure", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, ClassConnection},
		{"refused text", errors.New("dial tcp 1.2.3.4: connection refused"), ClassConnection},
		{"timed out text", errors.New("Request Timed Out"), ClassTransient},
		{"too large text", errors.New("message too large"), ClassRejected},
		{"unknown text", errors.New("something odd"), ClassUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
	if !ClassConnection.Retryable() || !ClassTransient.Retryable() || ClassRejected.Retryable() || ClassUnknown.Retryable() {
		t.Error("unexpected retryable classes")
	}
}

func TestFromKafka(t *testing.T) {
	if FromKafka(nil, "t") != nil {
		t.Error("nil error should map to nil")
	}
	tests := []struct {
		err  error
		code apperrors.ErrorCode
	}{
		{errors.New("broken pipe"), apperrors.ErrCodeStorage},
		{errors.New("unknown topic or partition"), apperrors.ErrCodeInvalidInput},
		{errors.New("weird"), apperrors.ErrCodeInternal},
	}
	for _, tc := range tests {
		got := FromKafka(tc.err, "logs")
		if got.Code != tc.code {
			t.Errorf("FromKafka(%v) code = %s, want %s", tc.err, got.Code, tc.code)
		}
		if got.Details["topic"] != "logs" {
			t.Errorf("missing topic detail on %v", got)
		}
	}
}

func TestCompression(t *testing.T) {
	tests := map[string]kafkago.Compression{
		"gzip":    kafkago.Gzip,
		"zstd":    kafkago.Zstd,
		"none":    0,
		"snappy":  kafkago.Snappy,
		"unknown": kafkago.Snappy,
	}
	for name, want := range tests {
		if got := Compression(name); got != want {
			t.Errorf("Compression(%q) = %v, want %v", name, got, want)
		}
	}
}
