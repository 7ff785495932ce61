// Package config loads inscribe configuration from file, environment
// and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Endpoint string         `mapstructure:"endpoint"`
	Keypair  string         `mapstructure:"keypair"`
	Cache    string         `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
	Deploy   DeployConfig   `mapstructure:"deploy"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Manifest ManifestConfig `mapstructure:"manifest"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DeployConfig holds deployment pipeline configuration.
type DeployConfig struct {
	// Parallelism is the maximum number of concurrently in-flight
	// batch submissions.
	Parallelism int `mapstructure:"parallelism"`

	// Timeout applies to each individual ledger call.
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageConfig holds blob gateway configuration for the upload phase.
type StorageConfig struct {
	Gateway     string        `mapstructure:"gateway"`
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ManifestConfig describes the record set being deployed.
type ManifestConfig struct {
	// Count is the expected number of records; deploy refuses to run
	// against a cache of a different size. Zero disables the check.
	Count int `mapstructure:"count"`

	// Label is a human-readable name recorded on the target.
	Label string `mapstructure:"label"`

	// Sealed creates a sealed target: record content revealed later,
	// nothing written at deploy time.
	Sealed bool `mapstructure:"sealed"`

	// AssetsDir is where upload and validate look for metadata files.
	AssetsDir string `mapstructure:"assets_dir"`
}

// =============================================================================
// Loading
// =============================================================================

// Load loads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("endpoint", "http://localhost:8899/rpc")
	v.SetDefault("keypair", "./id.json")
	v.SetDefault("cache", "./.inscribe-cache.json")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("deploy.parallelism", 45)
	v.SetDefault("deploy.timeout", "30s")
	v.SetDefault("storage.gateway", "")
	v.SetDefault("storage.concurrency", 8)
	v.SetDefault("storage.timeout", "60s")
	v.SetDefault("manifest.count", 0)
	v.SetDefault("manifest.label", "")
	v.SetDefault("manifest.sealed", false)
	v.SetDefault("manifest.assets_dir", "./assets")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if the file exists but is invalid;
			// a missing file falls back to defaults.
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("INSCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Deploy.Parallelism <= 0 {
		return fmt.Errorf("deploy.parallelism must be positive, got %d", c.Deploy.Parallelism)
	}
	if c.Storage.Concurrency <= 0 {
		return fmt.Errorf("storage.concurrency must be positive, got %d", c.Storage.Concurrency)
	}
	if c.Manifest.Count < 0 {
		return fmt.Errorf("manifest.count must not be negative, got %d", c.Manifest.Count)
	}
	return nil
}

// Starter renders the YAML template `inscribe init` writes for a new
// project.
func Starter() ([]byte, error) {
	doc := map[string]any{
		"endpoint": "http://localhost:8899/rpc",
		"keypair":  "./id.json",
		"cache":    "./.inscribe-cache.json",
		"log": map[string]any{
			"level":  "info",
			"format": "text",
		},
		"deploy": map[string]any{
			"parallelism": 45,
			"timeout":     "30s",
		},
		"storage": map[string]any{
			"gateway":     "https://blobs.example",
			"concurrency": 8,
			"timeout":     "60s",
		},
		"manifest": map[string]any{
			"count":      0,
			"label":      "my drop",
			"sealed":     false,
			"assets_dir": "./assets",
		},
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("render starter config: %w", err)
	}
	return out, nil
}
