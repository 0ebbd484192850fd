package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig reads configuration with viper.
// Environment (VX_ prefix) > config file > defaults precedence. CLI flags are
// layered on top by the caller.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets are environment-only
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
			MaxBatchSize:   v.GetInt("server.max_batch_size"),
			MetricsAddr:    v.GetString("server.metrics_addr"),
		},
		Extraction: ExtractionConfig{
			MaxDepth:                v.GetInt("extraction.max_depth"),
			UnsupportedFilterPolicy: strings.ToLower(v.GetString("extraction.unsupported_filter_policy")),
			Workers:                 v.GetInt("extraction.workers"),
		},
		Mappings: MappingsConfig{
			File:  v.GetString("mappings.file"),
			Watch: v.GetBool("mappings.watch"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout.String())
	v.SetDefault("server.max_batch_size", d.Server.MaxBatchSize)
	v.SetDefault("server.metrics_addr", "")
	v.SetDefault("extraction.max_depth", d.Extraction.MaxDepth)
	v.SetDefault("extraction.unsupported_filter_policy", d.Extraction.UnsupportedFilterPolicy)
	v.SetDefault("extraction.workers", 0)
	v.SetDefault("mappings.file", "")
	v.SetDefault("mappings.watch", false)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", c.Server.RequestTimeout)
	}
	if c.Server.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive, got %d", c.Server.MaxBatchSize)
	}
	if c.Extraction.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be positive, got %d", c.Extraction.MaxDepth)
	}
	if c.Extraction.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Extraction.Workers)
	}
	switch c.Extraction.UnsupportedFilterPolicy {
	case "pass", "fail":
	default:
		return fmt.Errorf("unsupported_filter_policy must be pass or fail, got %q", c.Extraction.UnsupportedFilterPolicy)
	}
	if c.Mappings.Watch && c.Mappings.File == "" {
		return fmt.Errorf("mappings.watch requires mappings.file")
	}
	return nil
}

// validateNoSecretsInConfig inspects only the file layer; VX_HMAC_SECRET in
// the environment is the supported channel.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("server.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use %s_HMAC_SECRET environment variable)", EnvPrefix)
	}
	return nil
}
