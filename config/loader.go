package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/watchmen-go/kernel/logger"
)

// EnvPrefix marks environment variables read into the configuration.
// WATCHMEN_PIPELINE_RETRY_TIMES sets pipeline.retry_times.
const EnvPrefix = "WATCHMEN"

// FileSystem abstracts the file operations of the loader for tests.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

// OSFileSystem implements FileSystem on the local disk.
type OSFileSystem struct{}

func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFileSystem) LoadEnv(path string) error { return godotenv.Load(path) }

// Resolver finds the config and env files of a service.
type Resolver struct {
	FileSystem FileSystem
}

// ResolvedFiles are the files the loader reads. Empty means none found.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

// ResolveFiles keeps explicit paths from opts and searches for the rest.
func (r *Resolver) ResolveFiles(serviceName string, opts LoaderConfig) ResolvedFiles {
	files := ResolvedFiles{ConfigFile: opts.ConfigFile, EnvFile: opts.EnvFile}
	if files.ConfigFile == "" {
		files.ConfigFile = r.first(configCandidates(serviceName))
	}
	if files.EnvFile == "" {
		files.EnvFile = r.first(envCandidates(serviceName))
	}
	return files
}

func (r *Resolver) first(paths []string) string {
	for _, p := range paths {
		if r.FileSystem.Exists(p) {
			return p
		}
	}
	return ""
}

func configCandidates(serviceName string) []string {
	var out []string
	for _, dir := range []string{filepath.Join("cmd", serviceName), "config", "."} {
		for _, name := range []string{"config.yml", "config.yaml", serviceName + ".yml"} {
			out = append(out, "./"+filepath.ToSlash(filepath.Join(dir, name)))
		}
	}
	return out
}

func envCandidates(serviceName string) []string {
	var out []string
	for _, dir := range []string{filepath.Join("cmd", serviceName), "config", "."} {
		for _, name := range []string{".env." + serviceName, ".env"} {
			out = append(out, "./"+filepath.ToSlash(filepath.Join(dir, name)))
		}
	}
	return out
}

// LoaderConfig holds loader dependencies and explicit file paths.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string
	EnvFile    string
	Defaults   map[string]any
}

// LoaderOption configures LoadConfig.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets the filesystem used to find and read files.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// WithDefault sets the value of key when neither file nor environment does.
func WithDefault(key string, value any) LoaderOption {
	return func(lc *LoaderConfig) {
		if lc.Defaults == nil {
			lc.Defaults = make(map[string]any)
		}
		lc.Defaults[key] = value
	}
}

// LoadConfig reads the YAML config file and the .env file of a service,
// overlays WATCHMEN_ environment variables and unmarshals into cfg.
// Missing files are not an error.
func LoadConfig(serviceName string, cfg any, opts ...LoaderOption) error {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.FileSystem == nil {
		lc.FileSystem = OSFileSystem{}
	}

	resolver := &Resolver{FileSystem: lc.FileSystem}
	files := resolver.ResolveFiles(serviceName, lc)
	log := logger.Get("config")

	v := viper.New()
	for k, val := range lc.Defaults {
		v.SetDefault(k, val)
	}

	if files.ConfigFile != "" && lc.FileSystem.Exists(files.ConfigFile) {
		v.SetConfigFile(files.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", files.ConfigFile, err)
		}
		log.Debug("config file loaded", logger.Fields("file", files.ConfigFile))
	}

	if files.EnvFile != "" && lc.FileSystem.Exists(files.EnvFile) {
		if err := lc.FileSystem.LoadEnv(files.EnvFile); err != nil {
			log.Warn("failed to load env file", logger.Fields("file", files.EnvFile, "error", err.Error()))
		}
	}
	bindEnv(v, os.Environ())

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config for service %s: %w", serviceName, err)
	}
	return nil
}

// bindEnv overlays prefixed variables onto v. A variable name is split on
// double underscores into key levels, and the first single underscore of
// the remainder separates section and field, so both
// WATCHMEN_PIPELINE_RETRY_TIMES and WATCHMEN_PIPELINE__RETRY_TIMES set
// pipeline.retry_times.
func bindEnv(v *viper.Viper, environ []string) {
	prefix := EnvPrefix + "_"
	for _, env := range environ {
		name, val, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		for _, key := range envKeys(strings.TrimPrefix(name, prefix)) {
			v.Set(key, val)
		}
	}
}

func envKeys(name string) []string {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "__") {
		return []string{strings.ReplaceAll(lower, "__", ".")}
	}
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return []string{lower}
	}
	return []string{section + "." + field}
}
