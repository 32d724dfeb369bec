// Package config handles configuration loading for nportd.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
	SEC       SECConfig       `mapstructure:"sec"       yaml:"sec"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" yaml:"ratelimit"`
	Cache     CacheConfig     `mapstructure:"cache"     yaml:"cache"`
	Stream    StreamConfig    `mapstructure:"stream"    yaml:"stream"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// SECConfig holds upstream EDGAR settings. FallbackURLs are the
// alternate document URL templates tried when the canonical archive
// URL is unavailable; they accept {archives}, {cik}, {accession} and
// {accession_nodash} placeholders.
type SECConfig struct {
	UserAgent      string   `mapstructure:"user_agent"      yaml:"user_agent"`
	SubmissionsURL string   `mapstructure:"submissions_url" yaml:"submissions_url"`
	ArchivesURL    string   `mapstructure:"archives_url"    yaml:"archives_url"`
	FallbackURLs   []string `mapstructure:"fallback_urls"   yaml:"fallback_urls"`
}

// RateLimitConfig holds per-client API rate limits.
type RateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute" yaml:"per_minute"`
	PerHour   int `mapstructure:"per_hour"   yaml:"per_hour"`
}

// CacheConfig holds the capacities of the three response caches.
type CacheConfig struct {
	MetadataSize int `mapstructure:"metadata_size" yaml:"metadata_size"`
	DocumentSize int `mapstructure:"document_size" yaml:"document_size"`
	HoldingsSize int `mapstructure:"holdings_size" yaml:"holdings_size"`
}

// StreamConfig holds streaming settings.
type StreamConfig struct {
	DelayMS int `mapstructure:"delay_ms" yaml:"delay_ms"`
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.nportd/config.yaml (home directory)
//  3. /etc/nportd/config.yaml (system)
//
// Environment variables override config file values.
// Format: NPORTD_<SECTION>_<KEY>, e.g., NPORTD_API_PORT.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".nportd"))
	v.AddConfigPath("/etc/nportd")

	v.SetEnvPrefix("NPORTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — that's fine, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("NPORTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8000)
	v.SetDefault("api.cors_origins", []string{"*"})

	// SEC asks automated clients to identify themselves.
	v.SetDefault("sec.user_agent", "nportd/1.0 contact@fundlens.dev")
	v.SetDefault("sec.submissions_url", "https://data.sec.gov/submissions")
	v.SetDefault("sec.archives_url", "https://www.sec.gov/Archives")
	v.SetDefault("sec.fallback_urls", []string{
		"https://www.sec.gov/cgi-bin/viewer?action=view&cik={cik}&accession_number={accession}&xbrl_type=v",
		"{archives}/edgar/data/{cik}/{accession_nodash}/xslFormNPORT-P_X01/primary_doc.xml",
	})

	v.SetDefault("ratelimit.per_minute", 10)
	v.SetDefault("ratelimit.per_hour", 100)

	v.SetDefault("cache.metadata_size", 256)
	v.SetDefault("cache.document_size", 128)
	v.SetDefault("cache.holdings_size", 64)

	v.SetDefault("stream.delay_ms", 100)
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
