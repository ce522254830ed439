// Package resolver turns a viewer query string into a crystal structure:
// it validates the query, downloads the referenced file, parses it and
// optionally builds a supercell.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ziadkadry99/crystal-viewer/internal/formats"
	"github.com/ziadkadry99/crystal-viewer/internal/logging"
	"github.com/ziadkadry99/crystal-viewer/internal/metrics"
	"github.com/ziadkadry99/crystal-viewer/internal/structure"
)

// State is the viewer state after resolution.
type State string

const (
	// StateIdle means no structure was requested.
	StateIdle State = "idle"
	// StateLoaded means a structure was fetched and parsed.
	StateLoaded State = "loaded"
)

// Result is the outcome of a successful resolution.
type Result struct {
	State     State
	Request   *Request
	Structure *structure.Structure
}

// DefaultMaxSupercellSites caps the sites a supercell may hold when
// Options.MaxSupercellSites is zero.
const DefaultMaxSupercellSites = 100000

// BodyHook may wrap the download stream, e.g. to report progress. size is
// -1 when the server sent no Content-Length.
type BodyHook func(r io.Reader, size int64) io.Reader

// Options configures a Resolver.
type Options struct {
	// HTTPClient defaults to a client with no timeout.
	HTTPClient *http.Client
	// Timeout bounds each download; zero means none.
	Timeout time.Duration
	// MaxBodyBytes caps the download size; zero means unlimited.
	MaxBodyBytes int64
	// AllowedHosts are doublestar patterns matched against the URL host.
	// Empty allows every host.
	AllowedHosts []string
	// MaxSupercellSites caps the site count after replication; zero means
	// DefaultMaxSupercellSites.
	MaxSupercellSites int
	UserAgent         string
	Metrics           *metrics.Metrics
	BodyHook          BodyHook
}

// Resolver resolves query strings into structures. It is safe for
// concurrent use; each call owns the structure it returns.
type Resolver struct {
	client       *http.Client
	timeout      time.Duration
	maxBodyBytes int64
	allowedHosts []string
	maxSites     int
	userAgent    string
	metrics      *metrics.Metrics
	bodyHook     BodyHook
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	maxSites := opts.MaxSupercellSites
	if maxSites <= 0 {
		maxSites = DefaultMaxSupercellSites
	}
	return &Resolver{
		client:       client,
		timeout:      opts.Timeout,
		maxBodyBytes: opts.MaxBodyBytes,
		allowedHosts: opts.AllowedHosts,
		maxSites:     maxSites,
		userAgent:    opts.UserAgent,
		metrics:      opts.Metrics,
		bodyHook:     opts.BodyHook,
	}
}

// WithBodyHook returns a copy of r that passes downloads through hook.
func (r *Resolver) WithBodyHook(hook BodyHook) *Resolver {
	cp := *r
	cp.bodyHook = hook
	return &cp
}

// Resolve parses rawQuery and, when it names a structure, loads it. A query
// without structure-url or structure-format yields StateIdle and no error.
func (r *Resolver) Resolve(ctx context.Context, rawQuery string) (*Result, error) {
	req, err := ParseQuery(rawQuery)
	if err != nil {
		r.observe(err)
		return nil, err
	}
	return r.ResolveRequest(ctx, req)
}

// ResolveRequest loads the structure described by req. A nil req is the
// idle state.
func (r *Resolver) ResolveRequest(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		if r.metrics != nil {
			r.metrics.Resolutions.WithLabelValues(metrics.OutcomeIdle).Inc()
		}
		return &Result{State: StateIdle}, nil
	}

	logger := logging.FromContext(ctx).With("structure_url", req.StructureURL, "format", req.Format)

	// Every structure has at least one site, so the factors alone can
	// exceed the limit before anything is downloaded.
	if req.Supercell != nil {
		if err := r.checkSupercell(1, *req.Supercell); err != nil {
			r.observe(err)
			return nil, err
		}
	}

	data, err := r.fetch(ctx, req.StructureURL)
	if err != nil {
		logger.Warn("structure fetch failed", "error", err)
		r.observe(err)
		return nil, err
	}

	s, err := formats.Parse(req.Format, data)
	if err != nil {
		perr := &ParseError{Format: req.Format, Err: err}
		logger.Warn("structure parse failed", "error", err)
		r.observe(perr)
		return nil, perr
	}

	if req.Supercell != nil {
		if err := r.checkSupercell(s.NumSites(), *req.Supercell); err != nil {
			r.observe(err)
			return nil, err
		}
		if err := s.MakeSupercell(*req.Supercell); err != nil {
			serr := &SupercellArgumentError{Value: fmt.Sprint(*req.Supercell), Reason: err.Error()}
			r.observe(serr)
			return nil, serr
		}
	}

	logger.Debug("structure resolved", "sites", s.NumSites(), "formula", s.Formula())
	r.observe(nil)
	return &Result{State: StateLoaded, Request: req, Structure: s}, nil
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &RemoteFetchError{URL: rawURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &RemoteFetchError{URL: rawURL, Err: fmt.Errorf("unsupported URL scheme %q", u.Scheme)}
	}
	if !r.hostAllowed(u.Hostname()) {
		return nil, &RemoteFetchError{URL: rawURL, Err: fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &RemoteFetchError{URL: rawURL, Err: err}
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &RemoteFetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteFetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if r.bodyHook != nil {
		body = r.bodyHook(body, resp.ContentLength)
	}
	if r.maxBodyBytes > 0 {
		body = io.LimitReader(body, r.maxBodyBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &RemoteFetchError{URL: rawURL, Err: fmt.Errorf("reading body: %w", err)}
	}
	if r.maxBodyBytes > 0 && int64(len(data)) > r.maxBodyBytes {
		return nil, &RemoteFetchError{URL: rawURL, Err: fmt.Errorf("body exceeds %d bytes", r.maxBodyBytes)}
	}

	if r.metrics != nil {
		r.metrics.FetchDuration.Observe(time.Since(start).Seconds())
		r.metrics.FetchBytes.Observe(float64(len(data)))
	}
	return data, nil
}

func (r *Resolver) checkSupercell(sites int, scale [3]int) error {
	size, ok := structure.SupercellSize(sites, scale)
	if !ok || size > r.maxSites {
		return &SupercellArgumentError{
			Value:  fmt.Sprintf("%d,%d,%d", scale[0], scale[1], scale[2]),
			Reason: fmt.Sprintf("replicating %d sites exceeds the limit of %d", sites, r.maxSites),
		}
	}
	return nil
}

func (r *Resolver) hostAllowed(host string) bool {
	if len(r.allowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, pattern := range r.allowedHosts {
		if ok, err := doublestar.Match(strings.ToLower(pattern), host); err == nil && ok {
			return true
		}
	}
	return false
}

func (r *Resolver) observe(err error) {
	if r.metrics == nil {
		return
	}
	outcome := metrics.OutcomeLoaded
	switch {
	case err == nil:
	case errors.Is(err, ErrRemoteFetch):
		outcome = metrics.OutcomeFetchError
	case errors.Is(err, ErrParse):
		outcome = metrics.OutcomeParseError
	case errors.Is(err, ErrSupercellArgument):
		outcome = metrics.OutcomeArgumentError
	}
	r.metrics.Resolutions.WithLabelValues(outcome).Inc()
}
