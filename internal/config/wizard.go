package config

import (
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard, saves the result to
// path and returns it.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to crystalviewer! Let's configure the viewer.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Listener.
	portPrompt := promptui.Prompt{
		Label:    "HTTP port",
		Default:  strconv.Itoa(cfg.Server.Port),
		Validate: validatePort,
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	cfg.Server.Port, _ = strconv.Atoi(portStr)

	prefixPrompt := promptui.Prompt{
		Label:   "URL path prefix",
		Default: cfg.Server.PathPrefix,
	}
	prefix, err := prefixPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("path prefix: %w", err)
	}
	cfg.Server.PathPrefix = prefix

	// 2. Cache backend.
	backendPrompt := promptui.Select{
		Label: "Select response cache",
		Items: []string{
			"none   - resolve every request",
			"redis  - shared cache for multiple instances",
			"sqlite - local file cache",
		},
	}
	backendIdx, _, err := backendPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("cache selection: %w", err)
	}
	backends := []CacheBackend{CacheNone, CacheRedis, CacheSQLite}
	cfg.Cache.Backend = backends[backendIdx]

	switch cfg.Cache.Backend {
	case CacheRedis:
		redisPrompt := promptui.Prompt{
			Label:   "Redis address",
			Default: "localhost:6379",
		}
		if cfg.Cache.RedisURL, err = redisPrompt.Run(); err != nil {
			return nil, fmt.Errorf("redis address: %w", err)
		}
	case CacheSQLite:
		pathPrompt := promptui.Prompt{
			Label:   "SQLite cache file",
			Default: cfg.Cache.SQLitePath,
		}
		if cfg.Cache.SQLitePath, err = pathPrompt.Run(); err != nil {
			return nil, fmt.Errorf("sqlite path: %w", err)
		}
	}

	// 3. Allowed hosts.
	hostsPrompt := promptui.Prompt{
		Label:   "Allowed structure hosts (comma-separated globs, blank allows all)",
		Default: "",
	}
	hosts, err := hostsPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("allowed hosts: %w", err)
	}
	cfg.Fetch.AllowedHosts = splitAndTrim(hosts)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

func validatePort(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535")
	}
	return nil
}
