// Package app wires configuration into the long-lived services shared by the
// HTTP server, the MCP server and one-shot CLI commands.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ziadkadry99/crystal-viewer/internal/cache"
	"github.com/ziadkadry99/crystal-viewer/internal/config"
	"github.com/ziadkadry99/crystal-viewer/internal/metrics"
	"github.com/ziadkadry99/crystal-viewer/internal/resolver"
	"github.com/ziadkadry99/crystal-viewer/internal/server"
	"github.com/ziadkadry99/crystal-viewer/internal/viewer"
)

// App holds the services built from one configuration.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Resolver *resolver.Resolver
	// Cache is nil when caching is disabled.
	Cache cache.Backend
}

// New validates cfg and builds the application services. Close must be
// called to release the cache backend.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}
	a.Resolver = resolver.New(resolver.Options{
		Timeout:           cfg.Fetch.Timeout,
		MaxBodyBytes:      cfg.Fetch.MaxBodyBytes,
		AllowedHosts:      cfg.Fetch.AllowedHosts,
		MaxSupercellSites: cfg.Fetch.MaxSupercellSites,
		UserAgent:         cfg.Fetch.UserAgent,
		Metrics:           a.Metrics,
	})

	backend, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	a.Cache = backend
	if backend != nil {
		logger.Info("response cache enabled", "backend", backend.Name(), "ttl", cfg.Cache.TTL)
	}
	return a, nil
}

func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Backend, error) {
	switch cfg.Backend {
	case config.CacheRedis:
		b, err := cache.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("opening redis cache: %w", err)
		}
		return b, nil
	case config.CacheSQLite:
		b, err := cache.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite cache: %w", err)
		}
		return b, nil
	default:
		return nil, nil
	}
}

// Viewer builds the viewer front-end, with the response cache applied when
// one is configured.
func (a *App) Viewer() (*viewer.Viewer, error) {
	opts := viewer.Options{
		Title:      a.Config.Server.Title,
		PathPrefix: a.Config.Server.PathPrefix,
		Resolver:   a.Resolver,
	}
	if a.Cache != nil {
		opts.Cache = cache.NewMiddleware(a.Cache, a.Config.Cache.TTL, a.Metrics)
	}
	return viewer.New(opts)
}

// Server builds the HTTP server around the viewer.
func (a *App) Server() (*server.Server, error) {
	v, err := a.Viewer()
	if err != nil {
		return nil, err
	}
	return server.New(server.Config{
		Addr:     a.Config.ListenAddr(),
		Compress: a.Config.Server.Compress,
		AllowAll: a.Config.Server.AllowAllOrigins,
	}, a.Logger, a.Metrics, v), nil
}

// SweepCache deletes expired sqlite cache entries on the configured interval
// until ctx is done. It returns at once for other backends, which expire
// entries themselves, or when the sweep is disabled.
func (a *App) SweepCache(ctx context.Context) {
	b, ok := a.Cache.(*cache.SQLiteBackend)
	if !ok || a.Config.Cache.SweepInterval <= 0 {
		return
	}
	b.Sweep(ctx, a.Config.Cache.SweepInterval, a.Logger.With("component", "cache-sweep"))
}

// Close releases the cache backend.
func (a *App) Close() error {
	if a.Cache != nil {
		return a.Cache.Close()
	}
	return nil
}
