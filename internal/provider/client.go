// Package provider holds the adapters that fetch live arrival readings from
// upstream bus information services.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"busarrival.dkucouncil.org/internal/bus"
	"busarrival.dkucouncil.org/internal/logging"
)

// ErrUnknownStation is returned by Fetch for a station the provider has no
// upstream id for.
var ErrUnknownStation = errors.New("station not served by provider")

const maxBodySize = 4 * 1024 * 1024

// NewHTTPClient returns a client for upstream calls. The transport is cloned
// from http.DefaultTransport to keep proxy and HTTP/2 settings.
func NewHTTPClient(timeout time.Duration) *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 50
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 5 * time.Second
	transport.ResponseHeaderTimeout = timeout

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Options configures the fields shared by every adapter.
type Options struct {
	Prefix  string
	BaseURL string
	// Headers are added to every request, typically an API key.
	Headers map[string]string
	// Stations maps bus stations to the provider's own station ids.
	Stations map[bus.Station]string
	Client   *http.Client
	// RequestsPerSecond bounds outbound calls. Zero means unlimited.
	RequestsPerSecond float64
	Logger            *slog.Logger
}

// upstream carries what every adapter needs to call its service.
type upstream struct {
	prefix   string
	baseURL  *url.URL
	headers  map[string]string
	stations map[bus.Station]string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

func newUpstream(opts Options, component string) (upstream, error) {
	if opts.Prefix == "" {
		return upstream{}, errors.New("provider prefix is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return upstream{}, fmt.Errorf("invalid %s base URL %q", opts.Prefix, opts.BaseURL)
	}

	client := opts.Client
	if client == nil {
		client = NewHTTPClient(10 * time.Second)
	}
	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = max(1, int(opts.RequestsPerSecond))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return upstream{
		prefix:   opts.Prefix,
		baseURL:  base,
		headers:  opts.Headers,
		stations: opts.Stations,
		client:   client,
		limiter:  rate.NewLimiter(limit, burst),
		logger: logger.With(
			slog.String("component", component),
			slog.String("provider", opts.Prefix)),
	}, nil
}

func (u upstream) Prefix() string {
	return u.prefix
}

func (u upstream) upstreamID(station bus.Station) (string, error) {
	id, ok := u.stations[station]
	if !ok || id == "" {
		return "", fmt.Errorf("%w: %s has no %s mapping", ErrUnknownStation, station, u.prefix)
	}
	return id, nil
}

// get waits for the rate limiter, performs a GET on the base URL with query
// and returns the size-limited body of a 200 response.
func (u upstream) get(ctx context.Context, query url.Values) ([]byte, error) {
	if err := u.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	target := *u.baseURL
	if len(query) > 0 {
		q := target.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	for key, value := range u.headers {
		req.Header.Add(key, value)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s request: %w", u.prefix, err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, u.logger, "http_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s fetch failed: upstream returned %s", u.prefix, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > maxBodySize {
		return nil, fmt.Errorf("%s response exceeds size limit of %d bytes", u.prefix, maxBodySize)
	}
	return body, nil
}
