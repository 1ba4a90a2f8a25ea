package config

import (
	"fmt"
	"time"

	"github.com/watchmen-go/kernel/database"
	"github.com/watchmen-go/kernel/encryption"
	"github.com/watchmen-go/kernel/external"
	"github.com/watchmen-go/kernel/kafka"
	"github.com/watchmen-go/kernel/monitor"
	"github.com/watchmen-go/kernel/observability"
	"github.com/watchmen-go/kernel/redis"
)

// ServiceName is the name the kernel loads its configuration under.
const ServiceName = "watchmen-kernel"

// Storage selects the topic data store.
const (
	StorageMemory = "memory"
	StorageGorm   = "gorm"
)

// PipelineConfig tunes pipeline execution.
type PipelineConfig struct {
	// RetryTimes bounds the optimistic retries of a merge or write action.
	RetryTimes int `yaml:"retry_times" mapstructure:"retry_times"`
	// RetryInterval is the base delay between retries; 1 to 20 ms of jitter is added.
	RetryInterval time.Duration `yaml:"retry_interval" mapstructure:"retry_interval"`
	// ForceRetryWithLock makes one final attempt under a row lock after the retries.
	ForceRetryWithLock bool `yaml:"force_retry_with_lock" mapstructure:"force_retry_with_lock"`
	// ParallelActionsInLoopUnit runs loop iterations concurrently.
	ParallelActionsInLoopUnit bool `yaml:"parallel_actions_in_loop_unit" mapstructure:"parallel_actions_in_loop_unit"`
	ParallelLoopLimit         int  `yaml:"parallel_loop_limit" mapstructure:"parallel_loop_limit"`
	// DecryptFactorValue opens encrypted factors read by actions.
	DecryptFactorValue bool `yaml:"decrypt_factor_value" mapstructure:"decrypt_factor_value"`
	// AsyncMonitorLog hands monitor logs to the sinks without waiting.
	AsyncMonitorLog bool `yaml:"async_monitor_log" mapstructure:"async_monitor_log"`
	// MaxRunsPerTrigger bounds the cascaded runs started by one trigger.
	// Zero leaves it unbounded.
	MaxRunsPerTrigger int `yaml:"max_runs_per_trigger" mapstructure:"max_runs_per_trigger"`
}

// ApplyDefaults fills zero-valued fields.
func (c *PipelineConfig) ApplyDefaults() {
	if c.RetryTimes <= 0 {
		c.RetryTimes = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 10 * time.Millisecond
	}
	if c.ParallelLoopLimit <= 0 {
		c.ParallelLoopLimit = 8
	}
}

// Validate checks the pipeline settings.
func (c *PipelineConfig) Validate() error {
	if c.RetryTimes < 1 {
		return fmt.Errorf("pipeline.retry_times must be >= 1 (got: %d)", c.RetryTimes)
	}
	if c.MaxRunsPerTrigger < 0 {
		return fmt.Errorf("pipeline.max_runs_per_trigger must be >= 0 (got: %d)", c.MaxRunsPerTrigger)
	}
	if c.RetryInterval > time.Minute {
		return fmt.Errorf("pipeline.retry_interval must be <= 1m (got: %s)", c.RetryInterval)
	}
	return nil
}

// DefaultPipelineConfig returns the pipeline settings with defaults applied.
func DefaultPipelineConfig() PipelineConfig {
	c := PipelineConfig{ForceRetryWithLock: true}
	c.ApplyDefaults()
	return c
}

// KernelConfig is the full configuration of the kernel process.
type KernelConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	// Storage is "memory" or "gorm".
	Storage    string                     `yaml:"storage" mapstructure:"storage"`
	Pipeline   PipelineConfig             `yaml:"pipeline" mapstructure:"pipeline"`
	Encryption encryption.Config          `yaml:"encryption" mapstructure:"encryption"`
	Database   database.Config            `yaml:"database" mapstructure:"database"`
	Redis      redis.Config               `yaml:"redis" mapstructure:"redis"`
	Kafka      kafka.Config               `yaml:"kafka" mapstructure:"kafka"`
	Monitor    monitor.Config             `yaml:"monitor" mapstructure:"monitor"`
	External   external.Config            `yaml:"external" mapstructure:"external"`
	Tracing    observability.TracerConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics    observability.MeterConfig  `yaml:"metrics" mapstructure:"metrics"`
}

// ApplyDefaults fills defaults in every section.
func (c *KernelConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = ServiceName
	}
	c.ServiceConfig.ApplyDefaults()
	if c.Storage == "" {
		c.Storage = StorageMemory
	}
	c.Pipeline.ApplyDefaults()
	c.Encryption.ApplyDefaults()
	c.Database.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Kafka.ApplyDefaults()
	c.Monitor.ApplyDefaults()
	c.External.ApplyDefaults()
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = c.Name
	}
	if c.Tracing.ServiceVersion == "" {
		c.Tracing.ServiceVersion = c.Version
	}
	c.Tracing.ApplyDefaults()
	if c.Metrics.ServiceName == "" {
		c.Metrics.ServiceName = c.Tracing.ServiceName
	}
	if c.Metrics.ServiceVersion == "" {
		c.Metrics.ServiceVersion = c.Tracing.ServiceVersion
	}
	c.Metrics.ApplyDefaults()
}

// Validate checks every section and the sinks against enabled backends.
func (c *KernelConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	switch c.Storage {
	case StorageMemory:
	case StorageGorm:
		if !c.Database.Enabled {
			return fmt.Errorf("config.storage %q requires database.enabled", c.Storage)
		}
	default:
		return fmt.Errorf("config.storage must be one of [memory, gorm] (got: %s)", c.Storage)
	}
	for name, v := range map[string]interface{ Validate() error }{
		"pipeline":   &c.Pipeline,
		"encryption": &c.Encryption,
		"database":   &c.Database,
		"redis":      &c.Redis,
		"kafka":      &c.Kafka,
		"monitor":    &c.Monitor,
		"external":   &c.External,
		"tracing":    &c.Tracing,
		"metrics":    &c.Metrics,
	} {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config.%s: %w", name, err)
		}
	}
	if c.Monitor.Uses(monitor.SinkRedis) && !c.Redis.Enabled {
		return fmt.Errorf("config.monitor: sink %q requires redis.enabled", monitor.SinkRedis)
	}
	if c.Monitor.Uses(monitor.SinkKafka) && !c.Kafka.Enabled {
		return fmt.Errorf("config.monitor: sink %q requires kafka.enabled", monitor.SinkKafka)
	}
	return nil
}

// Load reads the kernel configuration, applies defaults and validates it.
func Load(opts ...LoaderOption) (*KernelConfig, error) {
	var cfg KernelConfig
	opts = append([]LoaderOption{WithDefault("pipeline.force_retry_with_lock", true)}, opts...)
	if err := LoadConfig(ServiceName, &cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
