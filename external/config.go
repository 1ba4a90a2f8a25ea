package external

import (
	"errors"
	"fmt"
	"time"
)

// Writer types accepted in WriterConfig.Type.
const (
	TypeHTTP  = "http"
	TypeLocal = "local"
	TypeS3    = "s3"
)

// DefaultRegion is the S3 region used when none is set.
const DefaultRegion = "us-east-1"

// Config lists the external writers available to pipelines.
type Config struct {
	Writers []WriterConfig `yaml:"writers" mapstructure:"writers"`
}

// WriterConfig configures one writer. Only the fields of Type are read.
type WriterConfig struct {
	ID   string `yaml:"id" mapstructure:"id"`
	Type string `yaml:"type" mapstructure:"type"`

	// http
	URL string `yaml:"url" mapstructure:"url"`
	// PAT is sent as "Authorization: pat <token>"; Token as a bearer token.
	PAT       string        `yaml:"pat" mapstructure:"pat"`
	Token     string        `yaml:"token" mapstructure:"token"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RateLimit float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst     int           `yaml:"burst" mapstructure:"burst"`
	Retries   int           `yaml:"retries" mapstructure:"retries"`

	// local and s3
	BasePath string `yaml:"base_path" mapstructure:"base_path"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`

	// s3
	Bucket         string `yaml:"bucket" mapstructure:"bucket"`
	Region         string `yaml:"region" mapstructure:"region"`
	Endpoint       string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey      string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey      string `yaml:"secret_key" mapstructure:"secret_key"`
	ForcePathStyle bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

// ApplyDefaults fills zero-valued fields of every writer.
func (c *Config) ApplyDefaults() {
	for i := range c.Writers {
		c.Writers[i].ApplyDefaults()
	}
}

// Validate checks every writer and rejects duplicate ids.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Writers))
	for i := range c.Writers {
		w := &c.Writers[i]
		if err := w.Validate(); err != nil {
			return fmt.Errorf("writers[%d]: %w", i, err)
		}
		if seen[w.ID] {
			return fmt.Errorf("writers[%d]: duplicate id %q", i, w.ID)
		}
		seen[w.ID] = true
	}
	return nil
}

// ApplyDefaults fills zero-valued fields.
func (c *WriterConfig) ApplyDefaults() {
	switch c.Type {
	case TypeHTTP:
		if c.Timeout <= 0 {
			c.Timeout = 10 * time.Second
		}
		if c.RateLimit <= 0 {
			c.RateLimit = 10
		}
		if c.Burst <= 0 {
			c.Burst = 20
		}
	case TypeLocal:
		if c.BasePath == "" {
			c.BasePath = "./external"
		}
	case TypeS3:
		if c.Region == "" {
			c.Region = DefaultRegion
		}
	}
}

// Validate checks the fields required by Type.
func (c *WriterConfig) Validate() error {
	var errs []error
	if c.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	switch c.Type {
	case TypeHTTP:
		if c.URL == "" {
			errs = append(errs, errors.New("url is required"))
		}
		if c.PAT != "" && c.Token != "" {
			errs = append(errs, errors.New("pat and token are exclusive"))
		}
	case TypeLocal:
	case TypeS3:
		if c.Bucket == "" {
			errs = append(errs, errors.New("bucket is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("type must be one of [http, local, s3] (got: %s)", c.Type))
	}
	return errors.Join(errs...)
}
