// Package config provides environment-only configuration loading and
// validation for edgetun.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Environment variables (no prefix; the keys are the variable names
//     listed below, read verbatim — edgetun has no config-file tier)
//  2. Hardcoded defaults
//
// All configuration is validated during Load() to ensure correctness early.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// initConfig sets up the loader with defaults and env binding. There is no
// config file tier: every key below is read straight from the process
// environment.
func initConfig() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return v
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("API_KEY", "")

	v.SetDefault("UUID", "")
	v.SetDefault("DEV_MODE", false)

	v.SetDefault("RW_API_URL", "")
	v.SetDefault("RW_API_KEY", "")

	v.SetDefault("UUID_CACHE_TTL", 300)

	v.SetDefault("PROXY_IP", "")
	v.SetDefault("DNS_SERVER", "https://1.1.1.1/dns-query")

	v.SetDefault("MUX_ENABLED", true)
	v.SetDefault("MAX_SUBREQUESTS", 48)

	v.SetDefault("STATS_REPORT_URL", "")
	v.SetDefault("STATS_REPORT_TOKEN", "")

	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("LISTEN_ADDR", ":8080")

	v.SetDefault("L2_CACHE_PATH", "")
}

// Load reads the environment, applies defaults, and validates the result.
func Load() (*Config, error) {
	v := initConfig()

	cfg := &Config{
		APIKey:           v.GetString("API_KEY"),
		UUID:             v.GetString("UUID"),
		DevMode:          v.GetBool("DEV_MODE"),
		RWAPIURL:         v.GetString("RW_API_URL"),
		RWAPIKey:         v.GetString("RW_API_KEY"),
		UUIDCacheTTL:     time.Duration(v.GetInt("UUID_CACHE_TTL")) * time.Second,
		ProxyIP:          v.GetString("PROXY_IP"),
		DNSServer:        v.GetString("DNS_SERVER"),
		MuxEnabled:       v.GetBool("MUX_ENABLED"),
		MaxSubrequests:   v.GetInt("MAX_SUBREQUESTS"),
		StatsReportURL:   v.GetString("STATS_REPORT_URL"),
		StatsReportToken: v.GetString("STATS_REPORT_TOKEN"),
		LogLevel:         strings.ToLower(v.GetString("LOG_LEVEL")),
		ListenAddr:       v.GetString("LISTEN_ADDR"),
		L2CachePath:      v.GetString("L2_CACHE_PATH"),
	}

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalizeConfig validates and normalizes the configuration.
func normalizeConfig(cfg *Config) error {
	if !cfg.DevMode && cfg.UUID == "" && cfg.RWAPIURL == "" {
		return errors.New("config: one of UUID or RW_API_URL must be set outside DEV_MODE")
	}

	if cfg.UUIDCacheTTL <= 0 {
		cfg.UUIDCacheTTL = 300 * time.Second
	}

	if cfg.MaxSubrequests <= 0 {
		cfg.MaxSubrequests = 48
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "off":
	default:
		return fmt.Errorf("config: LOG_LEVEL must be one of debug|info|warn|error|off, got %q", cfg.LogLevel)
	}

	if cfg.DNSServer == "" {
		cfg.DNSServer = "https://1.1.1.1/dns-query"
	}

	return nil
}
