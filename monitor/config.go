package monitor

import (
	"fmt"
	"time"
)

// Sink names accepted in Config.Sinks.
const (
	SinkLogger = "logger"
	SinkRedis  = "redis"
	SinkKafka  = "kafka"
)

// Config selects where monitor logs go.
type Config struct {
	// Sinks lists the destinations; empty means logger only.
	Sinks []string `yaml:"sinks" mapstructure:"sinks"`

	// RedisKey is the list key, under the redis key prefix, holding recent logs.
	RedisKey string `yaml:"redis_key" mapstructure:"redis_key"`
	// MaxEntries caps each Redis list.
	MaxEntries int64 `yaml:"max_entries" mapstructure:"max_entries"`
	// TTL bounds how long a single log stays retrievable by trace id.
	TTL string `yaml:"ttl" mapstructure:"ttl"`

	// QueueSize buffers asynchronous logs; a full queue writes inline.
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
	Workers   int `yaml:"workers" mapstructure:"workers"`
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if len(c.Sinks) == 0 {
		c.Sinks = []string{SinkLogger}
	}
	if c.RedisKey == "" {
		c.RedisKey = "monitor"
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 1000
	}
	if c.TTL == "" {
		c.TTL = "24h"
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
}

// Validate checks sink names and durations.
func (c *Config) Validate() error {
	for _, s := range c.Sinks {
		switch s {
		case SinkLogger, SinkRedis, SinkKafka:
		default:
			return fmt.Errorf("monitor.sinks: unknown sink %q", s)
		}
	}
	if c.TTL != "" {
		if _, err := time.ParseDuration(c.TTL); err != nil {
			return fmt.Errorf("monitor.ttl: %w", err)
		}
	}
	return nil
}

// Uses reports whether sink is configured.
func (c *Config) Uses(sink string) bool {
	for _, s := range c.Sinks {
		if s == sink {
			return true
		}
	}
	return false
}

// TTLDuration returns TTL parsed, or zero when unset or invalid.
func (c *Config) TTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.TTL)
	return d
}
