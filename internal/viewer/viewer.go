// Package viewer serves the crystal structure viewer page, its assets and
// the endpoints the page calls to resolve the structure named in its URL.
package viewer

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/crystal-viewer/internal/cache"
	"github.com/ziadkadry99/crystal-viewer/internal/resolver"
)

// Options configures a Viewer.
type Options struct {
	Title string
	// PathPrefix is the absolute URL prefix the routes are mounted under,
	// with leading and trailing slashes.
	PathPrefix string
	Resolver   *resolver.Resolver
	// Cache wraps the structure endpoint when non-nil.
	Cache *cache.Middleware
}

// Viewer provides the page and its structure endpoints.
type Viewer struct {
	resolver *resolver.Resolver
	title    string
	prefix   string
	index    []byte
	help     []byte
	// api is the structure endpoint with caching applied. The websocket
	// handler calls it in-process so both transports share cache entries.
	api http.Handler
}

// New renders the static pages and assembles the handlers.
func New(opts Options) (*Viewer, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("viewer: resolver is required")
	}
	prefix := opts.PathPrefix
	if prefix == "" {
		prefix = "/"
	}
	if !strings.HasPrefix(prefix, "/") || !strings.HasSuffix(prefix, "/") {
		return nil, fmt.Errorf("viewer: path prefix %q must start and end with /", prefix)
	}

	v := &Viewer{
		resolver: opts.Resolver,
		title:    opts.Title,
		prefix:   prefix,
	}

	var err error
	if v.index, err = renderIndex(v.title, v.prefix); err != nil {
		return nil, err
	}
	if v.help, err = renderHelp(v.title, v.prefix); err != nil {
		return nil, err
	}

	v.api = http.HandlerFunc(v.handleStructure)
	if opts.Cache != nil {
		v.api = opts.Cache.Handler(v.api)
	}
	return v, nil
}

// Prefix returns the URL prefix the viewer expects to be mounted under.
func (v *Viewer) Prefix() string { return v.prefix }

// RegisterRoutes mounts all viewer routes onto the given router, which must
// already be scoped to the prefix.
func (v *Viewer) RegisterRoutes(r chi.Router) {
	r.Get("/", v.ServeIndex)
	r.Get("/help", v.ServeHelp)
	r.Handle("/assets/*", v.assetHandler())
	r.Method(http.MethodGet, "/_api/structure", v.api)
	r.Get("/_ws", v.handleWebSocket)
}
