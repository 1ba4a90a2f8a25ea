// Package config loads the kernel configuration.
//
// LoadConfig reads a YAML file and an optional .env file with viper and
// godotenv, then overlays WATCHMEN_ environment variables. Load does the
// same for KernelConfig and applies defaults and validation:
//
//	cfg, err := config.Load(config.WithConfigFile("config.yml"))
//
// WATCHMEN_PIPELINE_RETRY_TIMES=5 overrides pipeline.retry_times.
package config
