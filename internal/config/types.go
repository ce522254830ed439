package config

import "time"

// CacheBackend identifies a response cache store.
type CacheBackend string

const (
	CacheNone   CacheBackend = "none"
	CacheRedis  CacheBackend = "redis"
	CacheSQLite CacheBackend = "sqlite"
)

// Config is the top-level crystalviewer configuration, corresponding to
// .crystalviewer.yml.
type Config struct {
	Server ServerConfig `yaml:"server" koanf:"server"`
	Cache  CacheConfig  `yaml:"cache" koanf:"cache"`
	Fetch  FetchConfig  `yaml:"fetch" koanf:"fetch"`
	Log    LogConfig    `yaml:"log" koanf:"log"`
}

// ServerConfig holds HTTP listener and page settings.
type ServerConfig struct {
	Host            string `yaml:"host" koanf:"host"`
	Port            int    `yaml:"port" koanf:"port"`
	PathPrefix      string `yaml:"path_prefix" koanf:"path_prefix"`
	Title           string `yaml:"title" koanf:"title"`
	Compress        bool   `yaml:"compress" koanf:"compress"`
	AllowAllOrigins bool   `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}

// CacheConfig selects and configures the response cache.
type CacheConfig struct {
	Backend    CacheBackend  `yaml:"backend" koanf:"backend"`
	RedisURL   string        `yaml:"redis_url" koanf:"redis_url"`
	SQLitePath string        `yaml:"sqlite_path" koanf:"sqlite_path"`
	TTL        time.Duration `yaml:"ttl" koanf:"ttl"`

	// SweepInterval is how often expired sqlite entries are deleted; zero
	// disables the sweep.
	SweepInterval time.Duration `yaml:"sweep_interval" koanf:"sweep_interval"`
}

// FetchConfig controls how remote structure files are downloaded.
type FetchConfig struct {
	Timeout           time.Duration `yaml:"timeout" koanf:"timeout"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" koanf:"max_body_bytes"`
	MaxSupercellSites int           `yaml:"max_supercell_sites" koanf:"max_supercell_sites"`
	AllowedHosts      []string      `yaml:"allowed_hosts" koanf:"allowed_hosts"`
	UserAgent         string        `yaml:"user_agent" koanf:"user_agent"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}
