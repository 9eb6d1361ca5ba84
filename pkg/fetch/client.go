// Package fetch composes the identity rotator and the response cache into a
// single cache-first fetch operation. It performs exactly one network
// attempt per call; retry policy belongs to the orchestrator.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"agentharvest/pkg/cache"
	errs "agentharvest/pkg/errors"
	"agentharvest/pkg/identity"
	"agentharvest/pkg/logger"
	"agentharvest/pkg/ratelimit"
)

// Rotator yields proxy identities for outbound requests
type Rotator interface {
	Acquire(ctx context.Context) (identity.Identity, error)
}

// HeaderSource yields rotated emulated-browser header sets
type HeaderSource interface {
	Next() map[string]string
}

// ResponseCache is the fingerprint-keyed cache consulted before any
// network call.
type ResponseCache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttlSeconds int) error
}

// Options configures a Client
type Options struct {
	Cache   ResponseCache
	Rotator Rotator
	Headers HeaderSource
	Limiter ratelimit.Limiter
	Timeout time.Duration
	Logger  logger.Logger
}

// Client performs single-attempt, cache-aware HTTP GETs through rotated
// proxy identities.
type Client struct {
	cache   ResponseCache
	rotator Rotator
	headers HeaderSource
	limiter ratelimit.Limiter
	timeout time.Duration
	log     logger.Logger

	mu         sync.Mutex
	transports map[string]*http.Transport
}

// NewClient creates a fetch client. A nil Rotator means requests go out
// directly instead of through a proxy; a nil Limiter means no rate cap.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Unlimited{}
	}
	if opts.Headers == nil {
		opts.Headers = identity.NewHeaderRotator()
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	return &Client{
		cache:      opts.Cache,
		rotator:    opts.Rotator,
		headers:    opts.Headers,
		limiter:    opts.Limiter,
		timeout:    opts.Timeout,
		log:        opts.Logger,
		transports: make(map[string]*http.Transport),
	}
}

// Fetch returns the response body for url, serving from the cache when a
// live entry exists. On a miss it acquires an identity, performs one GET
// with a bounded timeout, caches a successful body under the fingerprint
// with the given TTL, and returns it. Any failure is propagated untouched;
// no retries happen here.
func (c *Client) Fetch(ctx context.Context, url string, extraHeaders map[string]string, ttlSeconds int) ([]byte, error) {
	fingerprint := cache.Fingerprint(url, extraHeaders)

	if c.cache != nil {
		if value, ok := c.cache.Get(fingerprint); ok {
			logger.LogCache(fingerprint, true)
			if body, ok := value.(string); ok {
				return []byte(body), nil
			}
			// Shape mismatch is treated as a miss
		}
		logger.LogCache(fingerprint, false)
	}

	c.limiter.Wait()

	body, err := c.doRequest(ctx, url, extraHeaders)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(fingerprint, string(body), ttlSeconds); err != nil {
			c.log.WithError(err).WithField("key", fingerprint).Warn("failed to cache response")
		}
	}
	return body, nil
}

// doRequest performs the single network attempt
func (c *Client) doRequest(ctx context.Context, url string, extraHeaders map[string]string) ([]byte, error) {
	httpClient := &http.Client{Timeout: c.timeout}
	if c.rotator != nil {
		id, err := c.rotator.Acquire(ctx)
		if err != nil {
			return nil, errs.New(errs.ErrorTypePool, 0, "failed to acquire identity: %v", err)
		}
		httpClient.Transport = c.transportFor(id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
	}

	// Rotated browser headers first, then caller headers win on conflict
	for key, value := range c.headers.Next() {
		req.Header.Set(key, value)
	}
	for key, value := range extraHeaders {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.log.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"url":      url,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.New(errs.ErrorTypeNetwork, 0, "network error: %v", err)
	}
	defer resp.Body.Close()

	logger.LogRequest(http.MethodGet, url, resp.StatusCode, float64(duration.Milliseconds()))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.FromStatusCode(resp.StatusCode,
			fmt.Sprintf("request to %s returned status %d", url, resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read response body: %v", err)
	}
	return body, nil
}

// transportFor returns a reusable transport routed through the identity's
// proxy endpoint.
func (c *Client) transportFor(id identity.Identity) *http.Transport {
	key := id.HostPort()

	c.mu.Lock()
	defer c.mu.Unlock()
	if transport, ok := c.transports[key]; ok {
		return transport
	}
	transport := &http.Transport{
		Proxy: http.ProxyURL(id.URL()),
	}
	c.transports[key] = transport
	return transport
}
