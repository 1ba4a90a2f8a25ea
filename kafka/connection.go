package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

var compressions = map[string]kafka.Compression{
	"none":   0,
	"gzip":   kafka.Gzip,
	"snappy": kafka.Snappy,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
}

// Compression returns the codec named by name. Unknown names use snappy.
func Compression(name string) kafka.Compression {
	if c, ok := compressions[name]; ok {
		return c
	}
	return kafka.Snappy
}

// NewTransport returns the transport shared by the writers of cfg.
func NewTransport(cfg *Config) (*kafka.Transport, error) {
	t := &kafka.Transport{
		IdleTimeout: ParseDuration(cfg.IdleTimeout),
		MetadataTTL: ParseDuration(cfg.MetadataTTL),
	}
	if cfg.EnableTLS {
		tc, err := transportTLS(cfg)
		if err != nil {
			return nil, fmt.Errorf("kafka tls: %w", err)
		}
		t.TLS = tc
	}
	if cfg.EnableSASL {
		m, err := mechanism(cfg.SASLMechanism, cfg.Username, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("kafka sasl: %w", err)
		}
		t.SASL = m
	}
	return t, nil
}

func transportTLS(cfg *Config) (*tls.Config, error) {
	tc := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: cfg.TLSSkipVerify}
	if cfg.TLSCAFile != "" {
		pem, err := os.ReadFile(cfg.TLSCAFile)
		if err != nil {
			return nil, err
		}
		tc.RootCAs = x509.NewCertPool()
		if !tc.RootCAs.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificate in %s", cfg.TLSCAFile)
		}
	}
	if cfg.TLSCertFile == "" || cfg.TLSKeyFile == "" {
		return tc, nil
	}
	pair, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		return nil, err
	}
	tc.Certificates = append(tc.Certificates, pair)
	return tc, nil
}

func mechanism(name, user, password string) (sasl.Mechanism, error) {
	switch name {
	case "PLAIN":
		return plain.Mechanism{Username: user, Password: password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, user, password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, user, password)
	}
	return nil, fmt.Errorf("unsupported mechanism %q", name)
}
