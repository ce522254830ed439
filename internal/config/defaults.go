package config

import "time"

const (
	// DefaultPath is the config file looked up in the working directory.
	DefaultPath = ".crystalviewer.yml"

	DefaultPort              = 50002
	DefaultPathPrefix        = "/crystal/viewer/"
	DefaultTitle             = "Crystal Viewer"
	DefaultCacheTTL          = 30 * 24 * time.Hour
	DefaultMaxSupercellSites = 100000
	DefaultSweepInterval     = time.Hour
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       DefaultPort,
			PathPrefix: DefaultPathPrefix,
			Title:      DefaultTitle,
			Compress:   true,
		},
		Cache: CacheConfig{
			Backend:       CacheNone,
			SQLitePath:    "crystalviewer-cache.db",
			TTL:           DefaultCacheTTL,
			SweepInterval: DefaultSweepInterval,
		},
		Fetch: FetchConfig{
			MaxBodyBytes:      32 << 20,
			MaxSupercellSites: DefaultMaxSupercellSites,
			UserAgent:         "crystalviewer",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
