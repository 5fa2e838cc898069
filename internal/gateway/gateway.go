// Package gateway is the single chokepoint for every outbound API call:
// retry with exponential backoff, response caching with TTL, and
// request/error accounting.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"groupbot/internal/domain"
	"groupbot/internal/metrics"
)

const (
	defaultAttempts  = 3
	defaultBaseDelay = 1 * time.Second
	callTimeout      = 10 * time.Second
)

// RetryPolicy bounds the attempts for one call. The delay before attempt N+1
// is BaseDelay × 2^(N-1); a zero BaseDelay retries immediately (the AI
// responder uses that).
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// Request describes one outbound call. When CacheKey is set, a response
// younger than CacheTTL is served from the in-memory cache without touching
// the network or the counters.
type Request struct {
	Method   string
	URL      string
	Header   http.Header
	Query    url.Values
	Body     any // JSON-encoded when non-nil
	CacheKey string
	CacheTTL time.Duration
	Retry    *RetryPolicy // nil = 3 attempts, 1s base delay
}

type cacheEntry struct {
	at   time.Time
	body []byte
}

// Gateway performs HTTP calls with a uniform retry/cache/counter discipline.
// Safe for concurrent use; the cache is last-writer-wins.
type Gateway struct {
	client  *http.Client
	logger  *slog.Logger
	metrics *metrics.Collector
	cache   sync.Map // cache key -> cacheEntry

	sleep func(time.Duration) // swapped out in tests
}

func New(logger *slog.Logger, collector *metrics.Collector) *Gateway {
	return &Gateway{
		client:  &http.Client{},
		logger:  logger,
		metrics: collector,
		sleep:   time.Sleep,
	}
}

// Do performs the call and returns the raw response body. Exhausted retries
// surface as *domain.NetworkError and increment the error counter exactly
// once; every success increments the request counter.
func (g *Gateway) Do(ctx context.Context, req Request) ([]byte, error) {
	if req.CacheKey != "" && req.CacheTTL > 0 {
		if v, ok := g.cache.Load(req.CacheKey); ok {
			entry := v.(cacheEntry)
			if time.Since(entry.at) < req.CacheTTL {
				g.logger.Debug("cache hit", "key", req.CacheKey)
				return entry.body, nil
			}
		}
	}

	policy := RetryPolicy{Attempts: defaultAttempts, BaseDelay: defaultBaseDelay}
	if req.Retry != nil {
		policy = *req.Retry
		if policy.Attempts < 1 {
			policy.Attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		body, err := g.once(ctx, req)
		if err == nil {
			if req.CacheKey != "" {
				g.cache.Store(req.CacheKey, cacheEntry{at: time.Now(), body: body})
			}
			g.metrics.APIRequests.Inc()
			return body, nil
		}

		lastErr = err
		if attempt < policy.Attempts {
			delay := policy.BaseDelay << (attempt - 1)
			g.logger.Warn("request attempt failed, retrying",
				"url", req.URL, "attempt", attempt, "of", policy.Attempts,
				"delay", delay, "err", err)
			if delay > 0 {
				g.sleep(delay)
			}
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				break
			}
			continue
		}
	}

	g.metrics.Errors.Inc()
	g.logger.Error("request failed after retries",
		"url", req.URL, "attempts", policy.Attempts, "err", lastErr)
	return nil, &domain.NetworkError{Target: req.URL, Err: lastErr}
}

// JSON performs the call and decodes the response body into out.
func (g *Gateway) JSON(ctx context.Context, req Request, out any) error {
	body, err := g.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", req.URL, err)
	}
	return nil
}

// once performs a single attempt with the fixed per-call timeout.
func (g *Gateway) once(ctx context.Context, req Request) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	target := req.URL
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var payload io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, target, payload)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := body
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, req.URL, snippet)
	}

	return body, nil
}
