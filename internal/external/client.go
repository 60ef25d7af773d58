// Package external provides the anti-corruption layer between the ranking
// pipeline and third-party HTTP APIs. All outbound calls are routed through
// BaseClient, which enforces consistent behavior: circuit breaking, trace
// propagation, response decompression and error mapping. Calls are never
// retried; a failed request surfaces immediately as a types.AppError.
package external

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"forecasting/internal/types"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/sony/gobreaker/v2"
)

// AcceptEncoding is sent on every request. Responses are decoded by
// DecodeBody.
const AcceptEncoding = "zstd, gzip"

// DefaultTripThreshold is the number of consecutive failures that opens the
// circuit breaker.
const DefaultTripThreshold = 5

// BaseClient wraps an *http.Client and a set of circuit breakers, one per
// breaker key. Provider clients (the forecast client) embed or hold a
// BaseClient to inherit its behavior.
//
// Breakers are keyed by request URL by default, so a source that keeps
// failing opens only its own breaker and never blocks its neighbours.
type BaseClient struct {
	client    *http.Client
	userAgent string
	keyFn     func(*http.Request) string
	newFn     func(key string) *gobreaker.CircuitBreaker[*http.Response]

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*http.Response]
}

// BreakerSettings configures the circuit breakers created by NewBaseClient.
type BreakerSettings struct {
	Name          string
	TripThreshold uint32        // consecutive failures before opening; default DefaultTripThreshold
	OpenTimeout   time.Duration // time spent open before a trial request; default 30s
	// Key maps a request to its breaker. Requests with the same key share
	// failure counts. Defaults to SourceKey.
	Key func(*http.Request) string
}

// SourceKey identifies the upstream source of a request: scheme, host, path
// and query. User info and fragments are ignored.
func SourceKey(req *http.Request) string {
	u := *req.URL
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// NewBaseClient creates a BaseClient that opens one circuit breaker per key
// on first use.
func NewBaseClient(httpClient *http.Client, settings BreakerSettings, userAgent string) *BaseClient {
	threshold := settings.TripThreshold
	if threshold == 0 {
		threshold = DefaultTripThreshold
	}
	timeout := settings.OpenTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	newFn := func(key string) *gobreaker.CircuitBreaker[*http.Response] {
		return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        settings.Name + " " + key,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil
			},
		})
	}

	c := newBaseClient(httpClient, userAgent, newFn)
	if settings.Key != nil {
		c.keyFn = settings.Key
	}
	return c
}

// NewBaseClientWithBreaker creates a BaseClient whose requests all share a
// caller-provided circuit breaker. This is useful for testing or when one
// breaker must guard a single upstream endpoint.
func NewBaseClientWithBreaker(
	httpClient *http.Client,
	breaker *gobreaker.CircuitBreaker[*http.Response],
	userAgent string,
) *BaseClient {
	c := newBaseClient(httpClient, userAgent, func(string) *gobreaker.CircuitBreaker[*http.Response] {
		return breaker
	})
	c.keyFn = func(*http.Request) string { return breaker.Name() }
	return c
}

func newBaseClient(
	httpClient *http.Client,
	userAgent string,
	newFn func(string) *gobreaker.CircuitBreaker[*http.Response],
) *BaseClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &BaseClient{
		client:    httpClient,
		userAgent: userAgent,
		keyFn:     SourceKey,
		newFn:     newFn,
		breakers:  make(map[string]*gobreaker.CircuitBreaker[*http.Response]),
	}
}

// breakerFor returns the breaker guarding key, creating it on first use.
func (c *BaseClient) breakerFor(key string) *gobreaker.CircuitBreaker[*http.Response] {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[key]
	if !ok {
		cb = c.newFn(key)
		c.breakers[key] = cb
	}
	return cb
}

// Do executes the HTTP request with:
//  1. Trace ID injection (X-B3-TraceId from context)
//  2. User-Agent and Accept-Encoding header injection
//  3. Circuit breaker wrapping, per breaker key
//  4. Error mapping to types.AppError
//
// 5xx and 429 responses count as breaker failures and are returned as
// errors. Any other response is returned as-is, still encoded; read it with
// DecodeBody. The caller is responsible for closing the response body.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if traceID := types.TraceID(req.Context()); traceID != "" {
		req.Header.Set("X-B3-TraceId", traceID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept-Encoding", AcceptEncoding)

	resp, err := c.breakerFor(c.keyFn(req)).Execute(func() (*http.Response, error) {
		r, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			return r, fmt.Errorf("upstream returned %d", r.StatusCode)
		}
		return r, nil
	})
	if err == nil {
		return resp, nil
	}

	if resp != nil {
		resp.Body.Close()
	}
	return nil, c.mapError(req, resp, err)
}

// BreakerSummary counts the breakers seen so far and how many of them are
// open, for health reporting.
type BreakerSummary struct {
	Total int
	Open  int
}

// Breakers summarizes the state of every breaker created so far.
func (c *BaseClient) Breakers() BreakerSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s BreakerSummary
	for _, cb := range c.breakers {
		s.Total++
		if cb.State() == gobreaker.StateOpen {
			s.Open++
		}
	}
	return s
}

// State reports the state of the breaker guarding key. A key that has not
// been used yet reports StateClosed.
func (c *BaseClient) State(key string) gobreaker.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[key]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}

// mapError translates HTTP-level failures into domain-level AppErrors.
func (c *BaseClient) mapError(req *http.Request, resp *http.Response, err error) *types.AppError {
	details := map[string]any{"url": req.URL.Redacted()}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamRateLimited,
			"circuit breaker is open; upstream service unavailable",
			err,
			details,
		)
	}

	if resp != nil {
		details["status"] = resp.StatusCode
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return types.NewAppErrorWithDetails(
				types.ErrCodeUpstreamRateLimited,
				"upstream rate limit exceeded",
				err,
				details,
			)
		case resp.StatusCode >= 500:
			return types.NewAppErrorWithDetails(
				types.ErrCodeUpstreamUnavailable,
				fmt.Sprintf("upstream returned %d", resp.StatusCode),
				err,
				details,
			)
		}
	}

	// Network error, DNS failure, timeout.
	return types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamUnavailable,
		"upstream request failed",
		err,
		details,
	)
}

// DecodeBody returns a reader over the decoded response body according to its
// Content-Encoding. Closing the returned reader closes the response body.
func DecodeBody(resp *http.Response) (io.ReadCloser, error) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))

	switch encoding {
	case "", "identity":
		return resp.Body, nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("opening gzip body: %w", err)
		}
		return &decodedBody{Reader: zr, closeFn: func() { zr.Close() }, body: resp.Body}, nil
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("opening zstd body: %w", err)
		}
		return &decodedBody{Reader: zr, closeFn: zr.Close, body: resp.Body}, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

type decodedBody struct {
	io.Reader
	closeFn func()
	body    io.Closer
}

func (d *decodedBody) Close() error {
	d.closeFn()
	return d.body.Close()
}
