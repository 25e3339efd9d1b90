package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// DefaultProxyProvider serves a newline-separated list of scheme://ip:port entries.
const DefaultProxyProvider = "https://api.proxyscrape.com/v4/free-proxy-list/get?request=display_proxies&proxy_format=protocolipport&format=text"

// DefaultUserAgents is the fixed set a fetch attempt draws from.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_14_5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/84.0.4147.89 Safari/537.36",
	"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/111.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_9_5) AppleWebKit/537.78.2 (KHTML, like Gecko) Version/7.0.6 Safari/537.78.2",
}

// DefaultSystemInstruction steers the model towards link and product extraction.
const DefaultSystemInstruction = "You are an expert web scraper. Parse product links and product details from HTML sources. " +
	"While extracting links, ensure to provide full URLs and remove unwanted tracking elements. " +
	"Example: https://www.example.com/../product. " +
	"Note: Do not forget to close JSON syntax with }]}."

// Config is the root configuration for scrapeoracle.
type Config struct {
	Fetcher  FetcherConfig  `mapstructure:"fetcher"  yaml:"fetcher"`
	Proxy    ProxyConfig    `mapstructure:"proxy"    yaml:"proxy"`
	Extract  ExtractConfig  `mapstructure:"extract"  yaml:"extract"`
	AI       AIConfig       `mapstructure:"ai"       yaml:"ai"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Storage  StorageConfig  `mapstructure:"storage"  yaml:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  yaml:"metrics"`
}

// FetcherConfig controls page fetching.
type FetcherConfig struct {
	Type           string        `mapstructure:"type"            yaml:"type"`
	MaxRetries     int           `mapstructure:"max_retries"     yaml:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"     yaml:"retry_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxBodySize    int64         `mapstructure:"max_body_size"   yaml:"max_body_size"`
	TLSInsecure    bool          `mapstructure:"tls_insecure"    yaml:"tls_insecure"`
	UserAgents     []string      `mapstructure:"user_agents"     yaml:"user_agents"`
	Seed           int64         `mapstructure:"seed"            yaml:"seed"`
}

// ProxyConfig controls the proxy pool.
type ProxyConfig struct {
	Enabled     bool          `mapstructure:"enabled"      yaml:"enabled"`
	ProviderURL string        `mapstructure:"provider_url" yaml:"provider_url"`
	Timeout     time.Duration `mapstructure:"timeout"      yaml:"timeout"`
	URLs        []string      `mapstructure:"urls"         yaml:"urls"`
}

// ExtractConfig selects how HTML becomes text before it reaches the model.
type ExtractConfig struct {
	Mode       string `mapstructure:"mode"        yaml:"mode"` // trafilatura, readable, raw
	ScopeCSS   string `mapstructure:"scope_css"   yaml:"scope_css"`
	ScopeXPath string `mapstructure:"scope_xpath" yaml:"scope_xpath"`
	MaxChars   int    `mapstructure:"max_chars"   yaml:"max_chars"`
}

// AIConfig controls the generation backend.
type AIConfig struct {
	Provider          string        `mapstructure:"provider"           yaml:"provider"`
	Model             string        `mapstructure:"model"              yaml:"model"`
	Endpoint          string        `mapstructure:"endpoint"           yaml:"endpoint"`
	Temperature       float64       `mapstructure:"temperature"        yaml:"temperature"`
	ResponseMIMEType  string        `mapstructure:"response_mime_type" yaml:"response_mime_type"`
	SystemInstruction string        `mapstructure:"system_instruction" yaml:"system_instruction"`
	RetryInitial      time.Duration `mapstructure:"retry_initial"      yaml:"retry_initial"`
	RetryMultiplier   float64       `mapstructure:"retry_multiplier"   yaml:"retry_multiplier"`
	RetryMax          time.Duration `mapstructure:"retry_max"          yaml:"retry_max"`
	RetryTimeout      time.Duration `mapstructure:"retry_timeout"      yaml:"retry_timeout"`
}

// PipelineConfig controls per-item sequencing.
type PipelineConfig struct {
	OracleDelay time.Duration `mapstructure:"oracle_delay" yaml:"oracle_delay"`
	KeepPages   bool          `mapstructure:"keep_pages"   yaml:"keep_pages"`
	Truncate    bool          `mapstructure:"truncate"     yaml:"truncate"`
}

// StorageConfig controls where artifacts are written.
type StorageConfig struct {
	OutputDir string      `mapstructure:"output_dir" yaml:"output_dir"`
	Output    string      `mapstructure:"output"     yaml:"output"`
	Mongo     MongoConfig `mapstructure:"mongo"      yaml:"mongo"`
}

// MongoConfig configures the optional MongoDB mirror.
type MongoConfig struct {
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the prometheus textfile dump.
type MetricsConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Fetcher: FetcherConfig{
			Type:           "http",
			MaxRetries:     10,
			RetryDelay:     5 * time.Second,
			RequestTimeout: 30 * time.Second,
			MaxBodySize:    10 * 1024 * 1024, // 10MB
			UserAgents:     append([]string(nil), DefaultUserAgents...),
		},
		Proxy: ProxyConfig{
			Enabled:     true,
			ProviderURL: DefaultProxyProvider,
			Timeout:     20 * time.Second,
		},
		Extract: ExtractConfig{
			Mode: "trafilatura",
		},
		AI: AIConfig{
			Provider:          "gemini",
			Model:             "gemini-1.5-flash-002",
			Temperature:       0.7,
			ResponseMIMEType:  "application/json",
			SystemInstruction: DefaultSystemInstruction,
			RetryInitial:      10 * time.Second,
			RetryMultiplier:   2,
			RetryMax:          60 * time.Second,
			RetryTimeout:      300 * time.Second,
		},
		Pipeline: PipelineConfig{
			OracleDelay: 4 * time.Second,
		},
		Storage: StorageConfig{
			OutputDir: ".",
			Output:    "ProductData.json",
			Mongo: MongoConfig{
				Database:   "scrapeoracle",
				Collection: "artifacts",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
