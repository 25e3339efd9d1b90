package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("SCRAPEORACLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("scrapeoracle")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".scrapeoracle"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env vars can override them.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("fetcher.type", cfg.Fetcher.Type)
	v.SetDefault("fetcher.max_retries", cfg.Fetcher.MaxRetries)
	v.SetDefault("fetcher.retry_delay", cfg.Fetcher.RetryDelay)
	v.SetDefault("fetcher.request_timeout", cfg.Fetcher.RequestTimeout)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.tls_insecure", cfg.Fetcher.TLSInsecure)
	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)
	v.SetDefault("fetcher.seed", cfg.Fetcher.Seed)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.provider_url", cfg.Proxy.ProviderURL)
	v.SetDefault("proxy.timeout", cfg.Proxy.Timeout)

	v.SetDefault("extract.mode", cfg.Extract.Mode)
	v.SetDefault("extract.scope_css", cfg.Extract.ScopeCSS)
	v.SetDefault("extract.scope_xpath", cfg.Extract.ScopeXPath)
	v.SetDefault("extract.max_chars", cfg.Extract.MaxChars)

	v.SetDefault("ai.provider", cfg.AI.Provider)
	v.SetDefault("ai.model", cfg.AI.Model)
	v.SetDefault("ai.endpoint", cfg.AI.Endpoint)
	v.SetDefault("ai.temperature", cfg.AI.Temperature)
	v.SetDefault("ai.response_mime_type", cfg.AI.ResponseMIMEType)
	v.SetDefault("ai.system_instruction", cfg.AI.SystemInstruction)
	v.SetDefault("ai.retry_initial", cfg.AI.RetryInitial)
	v.SetDefault("ai.retry_multiplier", cfg.AI.RetryMultiplier)
	v.SetDefault("ai.retry_max", cfg.AI.RetryMax)
	v.SetDefault("ai.retry_timeout", cfg.AI.RetryTimeout)

	v.SetDefault("pipeline.oracle_delay", cfg.Pipeline.OracleDelay)
	v.SetDefault("pipeline.keep_pages", cfg.Pipeline.KeepPages)
	v.SetDefault("pipeline.truncate", cfg.Pipeline.Truncate)

	v.SetDefault("storage.output_dir", cfg.Storage.OutputDir)
	v.SetDefault("storage.output", cfg.Storage.Output)
	v.SetDefault("storage.mongo.uri", cfg.Storage.Mongo.URI)
	v.SetDefault("storage.mongo.database", cfg.Storage.Mongo.Database)
	v.SetDefault("storage.mongo.collection", cfg.Storage.Mongo.Collection)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.file", cfg.Metrics.File)
}
