// Package config provides application configuration management.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds application configuration.
type Config struct {
	// Organization is the Azure DevOps organization name.
	Organization string `yaml:"organization" env:"ADO_ORGANIZATION"`
	// Projects is the list of project names to extract. When empty, every
	// project visible to the credential is discovered at run time.
	Projects []string `yaml:"projects" env:"ADO_PROJECTS" env-separator:","`
	// Token is the personal access token used for API authentication.
	// It must never appear in logs, errors or the run summary.
	Token string `yaml:"token" env:"ADO_TOKEN"`

	API     APIConfig     `yaml:"api"`
	Extract ExtractConfig `yaml:"extract"`
	Store   StoreConfig   `yaml:"store"`
	Logger  LoggerConfig  `yaml:"logger"`
	Server  ServerConfig  `yaml:"server"`
}

// APIConfig holds remote REST API client configuration.
type APIConfig struct {
	// BaseURL is the API root, without organization segment.
	BaseURL string `yaml:"base_url" env:"ADO_BASE_URL" env-default:"https://dev.azure.com"`
	// Version is the api-version query parameter value.
	Version string `yaml:"version" env:"ADO_API_VERSION" env-default:"7.1"`
	// RequestTimeout bounds a single HTTP request.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"ADO_REQUEST_TIMEOUT" env-default:"30s"`
	// PaceInterval is the fixed sleep applied before every request.
	PaceInterval time.Duration `yaml:"pace_interval" env:"ADO_PACE_INTERVAL" env-default:"250ms"`
	// MaxRetries is the number of attempts for transient failures.
	MaxRetries int `yaml:"max_retries" env:"ADO_MAX_RETRIES" env-default:"4"`
	// RetryDelay is the initial backoff delay.
	RetryDelay time.Duration `yaml:"retry_delay" env:"ADO_RETRY_DELAY" env-default:"2s"`
	// RetryMultiplier is the exponential backoff multiplier.
	RetryMultiplier float64 `yaml:"retry_multiplier" env:"ADO_RETRY_MULTIPLIER" env-default:"2.0"`
	// PageSize is the $top value for paginated listing endpoints.
	PageSize int `yaml:"page_size" env:"ADO_PAGE_SIZE" env-default:"100"`
}

// ExtractConfig holds extraction window configuration.
type ExtractConfig struct {
	// DefaultStartDate bounds the first-run full backfill (YYYY-MM-DD).
	DefaultStartDate string `yaml:"default_start_date" env:"EXTRACT_START_DATE" env-default:"2020-01-01"`
	// BackfillDays is the trailing window re-scanned in backfill mode.
	BackfillDays int `yaml:"backfill_days" env:"EXTRACT_BACKFILL_DAYS" env-default:"30"`
	// Overlap is subtracted from the high-water mark in incremental mode
	// to tolerate clock skew between the remote API and this host.
	Overlap time.Duration `yaml:"overlap" env:"EXTRACT_OVERLAP" env-default:"6h"`
	// EndDate is an optional upper bound override (YYYY-MM-DD); records
	// modified after it are not applied and the high-water mark stops there.
	EndDate string `yaml:"end_date" env:"EXTRACT_END_DATE" env-default:""`
}

// StoreConfig holds local store configuration.
type StoreConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" env:"STORE_PATH" env-default:"prmetrics.db"`
}

// ServerConfig holds HTTP server configuration for serve mode.
type ServerConfig struct {
	// Address is the listen address.
	Address string `yaml:"address" env:"SERVER_ADDRESS" env-default:":8080"`
	// GinMode is the Gin framework mode (debug, release, test).
	GinMode string `yaml:"gin_mode" env:"GIN_MODE" env-default:"release"`
}

// Load reads configuration from an optional YAML file with environment
// variable overrides. When path is empty only the environment is read.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not readable: %w", err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from environment: %w", err)
		}
	}

	return &cfg, nil
}

// Validate validates all configuration.
func (c *Config) Validate() error {
	if c.Organization == "" {
		return fmt.Errorf("organization is required")
	}
	if c.Token == "" {
		return fmt.Errorf("token is required")
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api config validation failed: %w", err)
	}
	if err := c.Extract.Validate(); err != nil {
		return fmt.Errorf("extract config validation failed: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config validation failed: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger config validation failed: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}

	return nil
}

// Validate validates API client configuration.
func (c APIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.PaceInterval < 0 {
		return fmt.Errorf("pace_interval must be non-negative")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("retry_delay must be positive")
	}
	if c.RetryMultiplier < 1 {
		return fmt.Errorf("retry_multiplier must be at least 1")
	}
	if c.PageSize < 1 || c.PageSize > 1000 {
		return fmt.Errorf("page_size must be between 1 and 1000")
	}
	return nil
}

// Validate validates extraction window configuration.
func (c ExtractConfig) Validate() error {
	if _, err := c.StartDate(); err != nil {
		return fmt.Errorf("invalid default_start_date: %w", err)
	}
	if c.BackfillDays < 1 {
		return fmt.Errorf("backfill_days must be at least 1")
	}
	if c.Overlap < 0 {
		return fmt.Errorf("overlap must be non-negative")
	}
	if _, err := c.EndDateTime(); err != nil {
		return fmt.Errorf("invalid end_date: %w", err)
	}
	return nil
}

// StartDate parses DefaultStartDate as a UTC date.
func (c ExtractConfig) StartDate() (time.Time, error) {
	return time.Parse("2006-01-02", c.DefaultStartDate)
}

// EndDateTime parses the optional EndDate override as the end of that UTC
// day. Returns nil when no override is configured.
func (c ExtractConfig) EndDateTime() (*time.Time, error) {
	if c.EndDate == "" {
		return nil, nil
	}
	day, err := time.Parse("2006-01-02", c.EndDate)
	if err != nil {
		return nil, err
	}
	end := day.Add(24*time.Hour - time.Nanosecond)
	return &end, nil
}

// Validate validates store configuration.
func (c StoreConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("store path is required")
	}
	return nil
}

// Validate validates server configuration.
func (c ServerConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("server address is required")
	}
	validGinModes := map[string]bool{
		"debug":   true,
		"release": true,
		"test":    true,
	}
	if !validGinModes[c.GinMode] {
		return fmt.Errorf("invalid gin_mode: %s (must be: debug, release, test)", c.GinMode)
	}
	return nil
}
