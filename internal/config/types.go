// Package config provides environment-only configuration loading for edgetun
// using Viper's AutomaticEnv binding.
//
// Environment variables are read verbatim (no prefix, no nesting):
//   - API_KEY, UUID, DEV_MODE, RW_API_URL, RW_API_KEY, UUID_CACHE_TTL,
//     PROXY_IP, DNS_SERVER, MUX_ENABLED, MAX_SUBREQUESTS, STATS_REPORT_URL,
//     STATS_REPORT_TOKEN, LOG_LEVEL, LISTEN_ADDR, MAX_SUBREQUESTS, L2_CACHE_PATH
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	APIKey string

	UUID    string
	DevMode bool

	RWAPIURL string
	RWAPIKey string

	UUIDCacheTTL time.Duration

	ProxyIP   string
	DNSServer string

	MuxEnabled     bool
	MaxSubrequests int

	StatsReportURL   string
	StatsReportToken string

	LogLevel string

	ListenAddr string

	L2CachePath string
}
