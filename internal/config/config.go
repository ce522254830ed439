package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: CRYSTALVIEWER_SERVER__PORT sets server.port.
const EnvPrefix = "CRYSTALVIEWER_"

// RedisURLEnv is the variable the hosted deployment sets to enable the
// redis cache.
const RedisURLEnv = "REDIS_URL"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (CRYSTALVIEWER_*) and finally REDIS_URL.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKeyValue), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if u := os.Getenv(RedisURLEnv); u != "" {
		if cfg.Cache.RedisURL == "" {
			cfg.Cache.RedisURL = u
		}
		if !k.Exists("cache.backend") {
			cfg.Cache.Backend = CacheRedis
		}
	}

	return cfg, nil
}

// envKeyValue maps CRYSTALVIEWER_FETCH__ALLOWED_HOSTS to fetch.allowed_hosts
// and splits list values on commas.
func envKeyValue(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if key == "fetch.allowed_hosts" {
		return key, splitAndTrim(value)
	}
	return key, value
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validBackends is the set of recognized cache backends.
var validBackends = map[CacheBackend]bool{
	CacheNone:   true,
	CacheRedis:  true,
	CacheSQLite: true,
}

// validLevels is the set of recognized log levels.
var validLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	p := c.Server.PathPrefix
	if !strings.HasPrefix(p, "/") || !strings.HasSuffix(p, "/") {
		return fmt.Errorf("server.path_prefix %q must start and end with /", p)
	}

	if !validBackends[c.Cache.Backend] {
		return fmt.Errorf("invalid cache.backend %q: must be one of none, redis, sqlite", c.Cache.Backend)
	}
	if c.Cache.Backend == CacheRedis && c.Cache.RedisURL == "" {
		return fmt.Errorf("cache.redis_url is required for the redis backend")
	}
	if c.Cache.Backend == CacheSQLite && c.Cache.SQLitePath == "" {
		return fmt.Errorf("cache.sqlite_path is required for the sqlite backend")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be non-negative")
	}
	if c.Cache.SweepInterval < 0 {
		return fmt.Errorf("cache.sweep_interval must be non-negative")
	}

	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("fetch.timeout must be non-negative")
	}
	if c.Fetch.MaxBodyBytes < 0 {
		return fmt.Errorf("fetch.max_body_bytes must be non-negative")
	}
	if c.Fetch.MaxSupercellSites < 1 {
		return fmt.Errorf("fetch.max_supercell_sites must be at least 1")
	}
	for _, pattern := range c.Fetch.AllowedHosts {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid fetch.allowed_hosts pattern %q", pattern)
		}
	}

	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be one of debug, info, warn, error", c.Log.Level)
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		return fmt.Errorf("invalid log.format %q: must be text or json", c.Log.Format)
	}

	return nil
}

// ListenAddr returns host:port for the HTTP listener.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// splitAndTrim splits a comma-separated string and drops blank entries.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
