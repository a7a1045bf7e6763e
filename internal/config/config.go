// Package config provides configuration loading and validation for the
// server and worker commands.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config is loaded from a JSON file, overlaid with environment
// variables, and finally with CLI flags. All fields are optional;
// missing values use defaults.
type Config struct {
	// Server
	ListenAddr  string `json:"listen_addr,omitempty"` // HTTP bind address, e.g. ":8080"
	APIKey      string `json:"api_key,omitempty"`     // Shared secret checked against X-API-Key
	Environment string `json:"environment,omitempty"` // Reported by the ping endpoint

	// Processing
	MaxConcurrent     int `json:"max_concurrent,omitempty"`     // Worker pool size
	ProcessingTimeout int `json:"processing_timeout,omitempty"` // Minutes before the reaper requeues an item
	MaxAttempts       int `json:"max_attempts,omitempty"`       // Retry bound per file

	// Storage
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	S3Endpoint  string `json:"s3_endpoint,omitempty"`  // S3-compatible endpoint (blank for AWS)
	S3Region    string `json:"s3_region,omitempty"`
	S3Bucket    string `json:"s3_bucket,omitempty"`
	S3AccessKey string `json:"s3_access_key,omitempty"`
	S3SecretKey string `json:"s3_secret_key,omitempty"`

	// Behavior
	Verbose bool `json:"verbose,omitempty"` // Print detailed debug information
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv fills empty fields from environment variables. File values
// win over the environment; flags win over both.
func (c *Config) FromEnv() {
	c.ListenAddr = orEnv(c.ListenAddr, "MMS_LISTEN_ADDR")
	c.APIKey = orEnv(c.APIKey, "MMS_API_KEY")
	c.Environment = orEnv(c.Environment, "MMS_ENVIRONMENT")
	c.DatabaseURL = orEnv(c.DatabaseURL, "DATABASE_URL")
	c.S3Endpoint = orEnv(c.S3Endpoint, "S3_ENDPOINT")
	c.S3Region = orEnv(c.S3Region, "S3_REGION")
	c.S3Bucket = orEnv(c.S3Bucket, "S3_BUCKET")
	c.S3AccessKey = orEnv(c.S3AccessKey, "S3_ACCESS_KEY")
	c.S3SecretKey = orEnv(c.S3SecretKey, "S3_SECRET_KEY")

	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = intEnv("MMS_MAX_CONCURRENT")
	}
	if c.ProcessingTimeout == 0 {
		c.ProcessingTimeout = intEnv("MMS_PROCESSING_TIMEOUT")
	}
}

func orEnv(current, key string) string {
	if current != "" {
		return current
	}
	return os.Getenv(key)
}

func intEnv(key string) int {
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

// Validate checks that the configuration has valid values. Required
// fields are checked by the commands after merging, not here.
func (c *Config) Validate() error {
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("config error: 'max_concurrent' must be non-negative")
	}
	if c.ProcessingTimeout < 0 {
		return fmt.Errorf("config error: 'processing_timeout' must be non-negative")
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("config error: 'max_attempts' must be non-negative")
	}
	if c.S3Bucket != "" && c.S3AccessKey == "" {
		return fmt.Errorf("config error: 's3_access_key' is required when 's3_bucket' is set")
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from
// defaults. This applies config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.ListenAddr == "" {
		result.ListenAddr = defaults.ListenAddr
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.Environment == "" {
		result.Environment = defaults.Environment
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.S3Endpoint == "" {
		result.S3Endpoint = defaults.S3Endpoint
	}
	if result.S3Region == "" {
		result.S3Region = defaults.S3Region
	}
	if result.S3Bucket == "" {
		result.S3Bucket = defaults.S3Bucket
	}
	if result.S3AccessKey == "" {
		result.S3AccessKey = defaults.S3AccessKey
	}
	if result.S3SecretKey == "" {
		result.S3SecretKey = defaults.S3SecretKey
	}

	if result.MaxConcurrent == 0 {
		if defaults.MaxConcurrent > 0 {
			result.MaxConcurrent = defaults.MaxConcurrent
		} else {
			result.MaxConcurrent = 4
		}
	}
	if result.ProcessingTimeout == 0 {
		if defaults.ProcessingTimeout > 0 {
			result.ProcessingTimeout = defaults.ProcessingTimeout
		} else {
			result.ProcessingTimeout = 15
		}
	}
	if result.MaxAttempts == 0 {
		if defaults.MaxAttempts > 0 {
			result.MaxAttempts = defaults.MaxAttempts
		} else {
			result.MaxAttempts = 3
		}
	}

	// Bool fields: cannot distinguish unset from false, so we don't
	// merge (CLI flags should always win for bools)

	return result
}
