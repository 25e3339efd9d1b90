package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/IshaanNene/scrapeoracle/internal/types"
)

// CredentialEnv maps providers to the environment variable holding their API key.
var CredentialEnv = map[string]string{
	"gemini": "GEMINI_API_KEY",
	"openai": "OPENAI_API_KEY",
}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Fetcher.MaxRetries < 1 {
		return fmt.Errorf("fetcher.max_retries must be >= 1, got %d", cfg.Fetcher.MaxRetries)
	}
	if cfg.Fetcher.RetryDelay < 0 {
		return fmt.Errorf("fetcher.retry_delay must be >= 0")
	}
	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}
	if len(cfg.Fetcher.UserAgents) == 0 {
		return fmt.Errorf("fetcher.user_agents must not be empty")
	}

	if cfg.Proxy.Enabled && cfg.Proxy.ProviderURL != "" {
		if _, err := url.Parse(cfg.Proxy.ProviderURL); err != nil {
			return fmt.Errorf("invalid proxy.provider_url: %w", err)
		}
	}
	for _, proxyURL := range cfg.Proxy.URLs {
		if _, err := url.Parse(proxyURL); err != nil {
			return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
		}
	}

	validModes := map[string]bool{"trafilatura": true, "readable": true, "raw": true}
	if !validModes[cfg.Extract.Mode] {
		return fmt.Errorf("extract.mode must be trafilatura/readable/raw, got %q", cfg.Extract.Mode)
	}
	if cfg.Extract.ScopeCSS != "" && cfg.Extract.ScopeXPath != "" {
		return fmt.Errorf("extract.scope_css and extract.scope_xpath are mutually exclusive")
	}

	validProviders := map[string]bool{"gemini": true, "ollama": true, "openai": true}
	if !validProviders[cfg.AI.Provider] {
		return fmt.Errorf("ai.provider must be gemini/ollama/openai, got %q", cfg.AI.Provider)
	}
	if cfg.AI.Model == "" {
		return fmt.Errorf("ai.model must be set")
	}
	if cfg.AI.RetryMultiplier < 1 {
		return fmt.Errorf("ai.retry_multiplier must be >= 1")
	}
	if cfg.AI.RetryInitial <= 0 || cfg.AI.RetryMax < cfg.AI.RetryInitial {
		return fmt.Errorf("ai.retry_initial must be > 0 and <= ai.retry_max")
	}

	if cfg.Pipeline.OracleDelay < 0 {
		return fmt.Errorf("pipeline.oracle_delay must be >= 0")
	}
	if cfg.Storage.Output == "" {
		return fmt.Errorf("storage.output must be set")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	return nil
}

// ValidateURL checks if a URL string is valid for fetching.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", types.ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: URL must have a host", types.ErrInvalidURL)
	}
	return nil
}

// APIKey returns the credential for the configured provider. Providers without
// an entry in CredentialEnv need none.
func APIKey(provider string) (string, error) {
	env, ok := CredentialEnv[provider]
	if !ok {
		return "", nil
	}
	key := os.Getenv(env)
	if key == "" {
		return "", &types.ConfigError{
			Field: env,
			Err:   fmt.Errorf("%w: set %s for provider %q", types.ErrMissingCredential, env, provider),
		}
	}
	return key, nil
}
