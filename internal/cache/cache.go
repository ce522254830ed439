// Package cache provides the page-level response cache: storage backends and
// an HTTP middleware keyed by the full request.
package cache

import (
	"context"
	"time"
)

// Backend stores opaque cached responses with an expiry.
type Backend interface {
	// Get returns the value for key and whether it was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Name identifies the backend in logs.
	Name() string

	Close() error
}
