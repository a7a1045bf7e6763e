package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ValidJSON(t *testing.T) {
	// Create temp config file
	content := `{
		"listen_addr": ":9090",
		"database_url": "postgres://localhost/mms",
		"max_concurrent": 8,
		"verbose": true
	}`

	tmpFile := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(tmpFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "postgres://localhost/mms", cfg.DatabaseURL)
	assert.Equal(t, 8, cfg.MaxConcurrent)
	assert.True(t, cfg.Verbose)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	content := `{ invalid json }`

	tmpFile := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(tmpFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(tmpFile)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "config path is empty")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/mms")
	t.Setenv("MMS_API_KEY", "env-secret")
	t.Setenv("MMS_MAX_CONCURRENT", "6")

	cfg := &Config{APIKey: "file-secret"}
	cfg.FromEnv()

	// File values win over the environment.
	assert.Equal(t, "file-secret", cfg.APIKey)
	assert.Equal(t, "postgres://env/mms", cfg.DatabaseURL)
	assert.Equal(t, 6, cfg.MaxConcurrent)
}

func TestValidate_NegativeValues(t *testing.T) {
	cfg := &Config{
		MaxConcurrent: -1,
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent")
}

func TestValidate_BucketNeedsCredentials(t *testing.T) {
	cfg := &Config{
		S3Bucket: "mms-archive",
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "s3_access_key")
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := &Config{
		ListenAddr:        ":8080",
		MaxConcurrent:     4,
		ProcessingTimeout: 15,
	}

	err := cfg.Validate()
	assert.NoError(t, err)
}

func TestMergeWithDefaults(t *testing.T) {
	defaults := Config{
		ListenAddr:    ":8080",
		Environment:   "staging",
		MaxConcurrent: 8,
	}

	partial := Config{
		Environment: "production",
		DatabaseURL: "postgres://localhost/mms",
	}

	merged := partial.MergeWithDefaults(defaults)

	// Custom values should be preserved
	assert.Equal(t, "production", merged.Environment)
	assert.Equal(t, "postgres://localhost/mms", merged.DatabaseURL)

	// Default values should fill in empty fields
	assert.Equal(t, ":8080", merged.ListenAddr)
	assert.Equal(t, 8, merged.MaxConcurrent)
}

func TestMergeWithDefaults_EmptyDefaults(t *testing.T) {
	cfg := Config{
		Environment: "dev",
	}

	merged := cfg.MergeWithDefaults(Config{})

	assert.Equal(t, "dev", merged.Environment)
	assert.Equal(t, 4, merged.MaxConcurrent)
	assert.Equal(t, 15, merged.ProcessingTimeout)
	assert.Equal(t, 3, merged.MaxAttempts)
}
