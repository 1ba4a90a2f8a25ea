package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/watchmen-go/kernel/monitor"
)

func TestServiceConfigApplyDefaults(t *testing.T) {
	t.Run("empty environment defaults to development", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc"}
		cfg.ApplyDefaults()
		if cfg.Environment != "development" || !cfg.Debug {
			t.Errorf("unexpected defaults: %+v", cfg)
		}
		if cfg.Logging.ServiceName != "svc" {
			t.Errorf("logging service name = %q", cfg.Logging.ServiceName)
		}
	})

	t.Run("production keeps debug false", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc", Environment: "production"}
		cfg.ApplyDefaults()
		if cfg.Debug {
			t.Error("expected debug=false for production")
		}
	})
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		cfg    ServiceConfig
		errMsg string
	}{
		{"valid", ServiceConfig{Name: "svc", Environment: "staging"}, ""},
		{"missing name", ServiceConfig{Environment: "production"}, "config.name is required"},
		{"invalid environment", ServiceConfig{Name: "svc", Environment: "moon"}, "config.environment must be one of"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			cfg.Logging.ApplyDefaults()
			err := cfg.Validate()
			if tc.errMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected error containing %q, got %v", tc.errMsg, err)
			}
		})
	}
}

func TestPipelineConfigDefaults(t *testing.T) {
	cfg := DefaultPipelineConfig()
	if cfg.RetryTimes != 3 || cfg.RetryInterval != 10*time.Millisecond {
		t.Errorf("unexpected retry defaults: %+v", cfg)
	}
	if !cfg.ForceRetryWithLock || cfg.ParallelActionsInLoopUnit {
		t.Errorf("unexpected flag defaults: %+v", cfg)
	}
	if cfg.ParallelLoopLimit != 8 {
		t.Errorf("parallel loop limit = %d", cfg.ParallelLoopLimit)
	}
	cfg.RetryInterval = time.Hour
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for long retry interval")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return p
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", `
name: kernel-test
environment: staging
storage: memory
pipeline:
  retry_times: 5
  retry_interval: 25ms
  parallel_actions_in_loop_unit: true
encryption:
  key: a-long-enough-key
monitor:
  sinks: [logger]
external:
  writers:
    - id: hook
      type: http
      url: http://localhost:9000/hook
      pat: secret
`)

	cfg, err := Load(WithConfigFile(path), WithEnvFile(filepath.Join(dir, "none.env")))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "kernel-test" || cfg.Environment != "staging" {
		t.Errorf("unexpected service config: %+v", cfg.ServiceConfig)
	}
	if cfg.Pipeline.RetryTimes != 5 || cfg.Pipeline.RetryInterval != 25*time.Millisecond {
		t.Errorf("unexpected pipeline config: %+v", cfg.Pipeline)
	}
	if !cfg.Pipeline.ParallelActionsInLoopUnit || !cfg.Pipeline.ForceRetryWithLock {
		t.Errorf("unexpected pipeline flags: %+v", cfg.Pipeline)
	}
	if cfg.Encryption.Key != "a-long-enough-key" {
		t.Errorf("encryption key = %q", cfg.Encryption.Key)
	}
	if len(cfg.External.Writers) != 1 || cfg.External.Writers[0].PAT != "secret" {
		t.Errorf("unexpected writers: %+v", cfg.External.Writers)
	}
	if cfg.Tracing.ServiceName != "kernel-test" {
		t.Errorf("tracing service name = %q", cfg.Tracing.ServiceName)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", "pipeline:\n  retry_times: 2\n")
	t.Setenv("WATCHMEN_PIPELINE_RETRY_TIMES", "7")
	t.Setenv("WATCHMEN_PIPELINE__FORCE_RETRY_WITH_LOCK", "false")

	cfg, err := Load(WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pipeline.RetryTimes != 7 {
		t.Errorf("retry times = %d, want 7", cfg.Pipeline.RetryTimes)
	}
	if cfg.Pipeline.ForceRetryWithLock {
		t.Error("expected force retry with lock disabled by env")
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(WithConfigFile("/nonexistent/config.yml"), WithFileSystem(&mockFS{}))
	if err != nil {
		t.Fatalf("expected defaults without a file, got %v", err)
	}
	if cfg.Name != ServiceName || cfg.Storage != StorageMemory {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Monitor.Sinks, []string{monitor.SinkLogger}) {
		t.Errorf("monitor sinks = %v", cfg.Monitor.Sinks)
	}
}

func TestKernelConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *KernelConfig)
		errMsg string
	}{
		{"gorm without database", func(c *KernelConfig) { c.Storage = StorageGorm }, "requires database.enabled"},
		{"unknown storage", func(c *KernelConfig) { c.Storage = "mongo" }, "config.storage must be one of"},
		{"redis sink without redis", func(c *KernelConfig) { c.Monitor.Sinks = []string{monitor.SinkRedis} }, "requires redis.enabled"},
		{"kafka sink without kafka", func(c *KernelConfig) { c.Monitor.Sinks = []string{monitor.SinkKafka} }, "requires kafka.enabled"},
		{"short encryption key", func(c *KernelConfig) { c.Encryption.Key = "abc" }, "config.encryption"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var cfg KernelConfig
			cfg.ApplyDefaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected error containing %q, got %v", tc.errMsg, err)
			}
		})
	}
}

func TestResolverWithMockFS(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./cmd/watchmen-kernel/config.yml": true,
		"./.env":                           true,
	}}
	resolver := &Resolver{FileSystem: fs}
	files := resolver.ResolveFiles(ServiceName, LoaderConfig{})
	if files.ConfigFile != "./cmd/watchmen-kernel/config.yml" {
		t.Errorf("config file = %q", files.ConfigFile)
	}
	if files.EnvFile != "./.env" {
		t.Errorf("env file = %q", files.EnvFile)
	}

	explicit := resolver.ResolveFiles(ServiceName, LoaderConfig{ConfigFile: "x.yml"})
	if explicit.ConfigFile != "x.yml" {
		t.Errorf("explicit config file ignored: %q", explicit.ConfigFile)
	}
}

func TestEnvKeys(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"NAME", "name"},
		{"PIPELINE_RETRY_TIMES", "pipeline.retry_times"},
		{"DATABASE__MAX_OPEN_CONNS", "database.max_open_conns"},
		{"LOGGING__LEVEL", "logging.level"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got := envKeys(tc.in)
			if len(got) != 1 || got[0] != tc.want {
				t.Errorf("envKeys(%q) = %v, want %s", tc.in, got, tc.want)
			}
		})
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool  { return m.files[path] }
func (m *mockFS) LoadEnv(string) error     { return nil }
