package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the agent harvester
type Config struct {
	// Remote directory API settings
	Directory DirectoryConfig `yaml:"directory" json:"directory"`

	// Proxy credential service settings
	Proxy ProxyConfig `yaml:"proxy" json:"proxy"`

	// Harvest orchestration settings
	Harvest HarvestConfig `yaml:"harvest" json:"harvest"`

	// Fetch client settings
	Fetch FetchConfig `yaml:"fetch" json:"fetch"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// DirectoryConfig holds remote listing/detail API configuration
type DirectoryConfig struct {
	BaseURL       string `yaml:"base_url" json:"base_url"`
	SessionCookie string `yaml:"session_cookie" json:"session_cookie"`
}

// ProxyConfig holds proxy credential service configuration
type ProxyConfig struct {
	ServiceURL string `yaml:"service_url" json:"service_url"`
	APIToken   string `yaml:"api_token" json:"api_token"`
	PageSize   int    `yaml:"page_size" json:"page_size"`
}

// HarvestConfig holds batch orchestration configuration
type HarvestConfig struct {
	PageSize     int           `yaml:"page_size" json:"page_size"`
	BatchSize    int           `yaml:"batch_size" json:"batch_size"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay" json:"retry_delay"`
	BatchDelay   time.Duration `yaml:"batch_delay" json:"batch_delay"`
	CacheTTLSecs int           `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`
}

// FetchConfig holds fetch client configuration
type FetchConfig struct {
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// OutputConfig holds output file and cache directory configuration
type OutputConfig struct {
	File     string `yaml:"file" json:"file"`
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Directory: DirectoryConfig{
			BaseURL: "https://directory.example.com/api",
		},
		Proxy: ProxyConfig{
			ServiceURL: "https://proxy.webshare.io/api/v2/proxy/list/",
			PageSize:   100,
		},
		Harvest: HarvestConfig{
			PageSize:     500,
			BatchSize:    5,
			MaxRetries:   3,
			RetryDelay:   2 * time.Second,
			BatchDelay:   1 * time.Second,
			CacheTTLSecs: 86400,
		},
		Fetch: FetchConfig{
			RequestTimeout:    30 * time.Second,
			RequestsPerMinute: 0, // 0 means unlimited
		},
		Output: OutputConfig{
			File:     "agents.ndjson",
			CacheDir: ".cache",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// environment variables, and command-line flag overrides, in that order.
func Load(path string, flags map[string]interface{}) (*Config, error) {
	// Load .env file if present (ignore errors, it's optional)
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(path); err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	cfg.applyFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// findConfigFile looks for a config file in standard locations
func (c *Config) findConfigFile() string {
	candidates := []string{
		"agentharvest.yaml",
		".agentharvest.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".agentharvest.yaml"))
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("AGENTHARVEST_API_BASE_URL"); v != "" {
		c.Directory.BaseURL = v
	}
	if v := os.Getenv("AGENTHARVEST_SESSION_COOKIE"); v != "" {
		c.Directory.SessionCookie = v
	}
	if v := os.Getenv("AGENTHARVEST_PROXY_SERVICE_URL"); v != "" {
		c.Proxy.ServiceURL = v
	}
	if v := os.Getenv("AGENTHARVEST_PROXY_API_TOKEN"); v != "" {
		c.Proxy.APIToken = v
	}
	if v := envInt("AGENTHARVEST_PAGE_SIZE"); v > 0 {
		c.Harvest.PageSize = v
	}
	if v := envInt("AGENTHARVEST_BATCH_SIZE"); v > 0 {
		c.Harvest.BatchSize = v
	}
	if v := envInt("AGENTHARVEST_MAX_RETRIES"); v > 0 {
		c.Harvest.MaxRetries = v
	}
	if v := envInt("AGENTHARVEST_RETRY_DELAY_MS"); v > 0 {
		c.Harvest.RetryDelay = time.Duration(v) * time.Millisecond
	}
	if v := envInt("AGENTHARVEST_BATCH_DELAY_MS"); v > 0 {
		c.Harvest.BatchDelay = time.Duration(v) * time.Millisecond
	}
	if v := envInt("AGENTHARVEST_CACHE_TTL"); v > 0 {
		c.Harvest.CacheTTLSecs = v
	}
	if v := envInt("AGENTHARVEST_REQUEST_TIMEOUT"); v > 0 {
		c.Fetch.RequestTimeout = time.Duration(v) * time.Second
	}
	if v := envInt("AGENTHARVEST_REQUESTS_PER_MINUTE"); v > 0 {
		c.Fetch.RequestsPerMinute = v
	}
	if v := os.Getenv("AGENTHARVEST_OUTPUT_FILE"); v != "" {
		c.Output.File = v
	}
	if v := os.Getenv("AGENTHARVEST_CACHE_DIR"); v != "" {
		c.Output.CacheDir = v
	}
	if v := os.Getenv("AGENTHARVEST_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AGENTHARVEST_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	return nil
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// applyFlags applies command-line flag overrides
func (c *Config) applyFlags(flags map[string]interface{}) {
	for key, value := range flags {
		switch key {
		case "output":
			if v, ok := value.(string); ok && v != "" {
				c.Output.File = v
			}
		case "cache-dir":
			if v, ok := value.(string); ok && v != "" {
				c.Output.CacheDir = v
			}
		case "batch-size":
			if v, ok := value.(int); ok && v > 0 {
				c.Harvest.BatchSize = v
			}
		case "page-size":
			if v, ok := value.(int); ok && v > 0 {
				c.Harvest.PageSize = v
			}
		case "max-retries":
			if v, ok := value.(int); ok && v > 0 {
				c.Harvest.MaxRetries = v
			}
		case "cache-ttl":
			if v, ok := value.(int); ok && v > 0 {
				c.Harvest.CacheTTLSecs = v
			}
		case "base-url":
			if v, ok := value.(string); ok && v != "" {
				c.Directory.BaseURL = v
			}
		case "proxy-token":
			if v, ok := value.(string); ok && v != "" {
				c.Proxy.APIToken = v
			}
		case "log-level":
			if v, ok := value.(string); ok && v != "" {
				c.Logging.Level = v
			}
		}
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Harvest.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.Harvest.PageSize)
	}
	if c.Harvest.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Harvest.BatchSize)
	}
	if c.Harvest.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive, got %d", c.Harvest.MaxRetries)
	}
	if c.Fetch.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.Fetch.RequestTimeout)
	}
	if c.Directory.BaseURL == "" {
		return fmt.Errorf("directory base URL is required")
	}
	if c.Output.File == "" {
		return fmt.Errorf("output file is required")
	}
	return nil
}
