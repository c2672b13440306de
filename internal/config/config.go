// Package config loads canyon-gpx settings from defaults, an optional YAML
// file and CANYONGPX_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pfrederiksen/canyon-gpx/internal/canyon"
	"github.com/pfrederiksen/canyon-gpx/internal/scraper"
)

// Config holds all application configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
	Region RegionConfig `mapstructure:"region"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type FetchConfig struct {
	Timeout            int    `mapstructure:"timeout"`
	UserAgent          string `mapstructure:"user_agent"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// TimeoutDuration returns the per-fetch timeout
func (f FetchConfig) TimeoutDuration() time.Duration {
	return time.Duration(f.Timeout) * time.Second
}

type RegionConfig struct {
	ListingURL string `mapstructure:"listing_url"`
	// Timeout bounds a whole regional conversion and replaces
	// server.write_timeout on the region route.
	Timeout    int    `mapstructure:"timeout"`
}

// TimeoutDuration returns the regional conversion timeout
func (r RegionConfig) TimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration. An empty path searches for config.yaml in the
// working directory and ./configs; a missing file is not an error, but an
// explicitly named one must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 120)
	v.SetDefault("fetch.timeout", int(scraper.Timeout/time.Second))
	v.SetDefault("fetch.user_agent", scraper.UserAgent)
	v.SetDefault("fetch.insecure_skip_verify", false)
	v.SetDefault("region.listing_url", canyon.DefaultListingURL)
	v.SetDefault("region.timeout", 900)
	v.SetDefault("log.level", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		_ = v.ReadInConfig() // OK if missing
	}

	// Environment variables: CANYONGPX_SERVER_PORT → server.port
	v.SetEnvPrefix("CANYONGPX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, "fetch.timeout must be positive")
	}
	if c.Fetch.UserAgent == "" {
		errs = append(errs, "fetch.user_agent is required")
	}
	if !strings.HasPrefix(c.Region.ListingURL, "http://") && !strings.HasPrefix(c.Region.ListingURL, "https://") {
		errs = append(errs, fmt.Sprintf("region.listing_url must be an http(s) URL, got %q", c.Region.ListingURL))
	}

	if c.Region.Timeout <= 0 {
		errs = append(errs, "region.timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
