package config

import (
	"fmt"
	"os"
	"path/filepath"

	"artcache/internal/core/types"

	"github.com/goccy/go-yaml"
)

// Config is the top-level configuration for the cache and its providers.
type Config struct {
	CacheName string                    `yaml:"cache_name"`
	CacheDir  string                    `yaml:"cache_dir"`
	SpoolDir  string                    `yaml:"spool_dir"`
	Workers   int                       `yaml:"workers"`
	Debug     bool                      `yaml:"debug"`
	Transfer  TransferConfig            `yaml:"transfer"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// TransferConfig bounds concurrent fetches and their byte rate.
type TransferConfig struct {
	RateLimit   types.Bytes `yaml:"rate_limit"`
	RateBurst   types.Bytes `yaml:"rate_burst"`
	Concurrency int         `yaml:"concurrency"`
}

// ProviderConfig describes one artifact source. Which fields apply depends
// on the provider type (local, http, s3).
type ProviderConfig struct {
	ID      string            `yaml:"id"`
	Type    string            `yaml:"type"`
	Name    string            `yaml:"name"`
	Root    string            `yaml:"root"`
	BaseURL string            `yaml:"base_url"`
	Token   string            `yaml:"token"`
	Headers map[string]string `yaml:"headers"`
	HTTP2   bool              `yaml:"http2"`
	Bucket  string            `yaml:"bucket"`
	Prefix  string            `yaml:"prefix"`
	Region  string            `yaml:"region"`
	Profile string            `yaml:"profile"`
}

// DefaultTransferConfig returns the default transfer limits.
func DefaultTransferConfig() TransferConfig {
	return TransferConfig{
		RateLimit:   types.Bytes(types.DefaultRateLimit),
		RateBurst:   types.Bytes(types.DefaultRateBurst),
		Concurrency: types.DefaultConcurrency,
	}
}

// DefaultConfig returns a configuration rooted under the user cache dir.
func DefaultConfig() *Config {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	root := filepath.Join(base, "artcache")

	return &Config{
		CacheName: "artcache",
		CacheDir:  filepath.Join(root, "files"),
		SpoolDir:  filepath.Join(root, "spool"),
		Workers:   10,
		Transfer:  DefaultTransferConfig(),
		Providers: make(map[string]ProviderConfig),
	}
}

// LoadConfig loads configuration from a YAML file and applies defaults.
// An empty path yields the defaults unchanged.
func LoadConfig(configFile string) (*Config, error) {
	config := DefaultConfig()

	if configFile != "" && FileExists(configFile) {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
		loaded := &Config{}
		if err := yaml.Unmarshal(data, loaded); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
		config = mergeConfig(loaded, config)
	}

	// Provider IDs default to their map key.
	for id, p := range config.Providers {
		if p.ID == "" {
			p.ID = id
			config.Providers[id] = p
		}
	}

	return config, nil
}

// mergeConfig merges a loaded config with defaults, loaded values taking
// precedence.
func mergeConfig(loaded, defaults *Config) *Config {
	result := &Config{
		CacheName: coalesce(loaded.CacheName, defaults.CacheName),
		CacheDir:  coalesce(loaded.CacheDir, defaults.CacheDir),
		SpoolDir:  coalesce(loaded.SpoolDir, defaults.SpoolDir),
		Workers:   coalesce(loaded.Workers, defaults.Workers),
		Debug:     loaded.Debug || defaults.Debug,
		Transfer: TransferConfig{
			RateLimit:   coalesce(loaded.Transfer.RateLimit, defaults.Transfer.RateLimit),
			RateBurst:   coalesce(loaded.Transfer.RateBurst, defaults.Transfer.RateBurst),
			Concurrency: coalesce(loaded.Transfer.Concurrency, defaults.Transfer.Concurrency),
		},
		Providers: loaded.Providers,
	}
	if result.Providers == nil {
		result.Providers = make(map[string]ProviderConfig)
	}
	return result
}

func coalesce[T comparable](loaded, defaultVal T) T {
	var zero T
	if loaded != zero {
		return loaded
	}
	return defaultVal
}
