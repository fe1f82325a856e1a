// Package httpclient is the shared JSON-over-HTTP client used by vendor
// adapters. It retries 429 and 5xx responses with exponential backoff,
// honours Retry-After and can be rate limited with a token bucket.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxAttempts  = 4
	defaultInitialDelay = 500 * time.Millisecond
	defaultMaxDelay     = 20 * time.Second
	maxErrorBody        = 2048
)

// StatusError is returned for non-2xx responses after retries are exhausted.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client talks to one vendor base URL.
type Client struct {
	service      string
	baseURL      string
	http         *http.Client
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	limiter      *rate.Limiter
	decorate     func(*http.Request)
	onError      func(service string, err error)
	sleep        func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRetry sets the attempt budget and the first backoff delay.
func WithRetry(maxAttempts int, initialDelay time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if initialDelay >= 0 {
			c.initialDelay = initialDelay
		}
	}
}

// WithRateLimit enables a token bucket of perSecond requests with burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithBearer sets an Authorization: Bearer header on every request.
func WithBearer(token string) Option {
	return WithDecorator(func(r *http.Request) {
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	})
}

// WithDecorator adds a request mutator, e.g. for API-key headers.
func WithDecorator(fn func(*http.Request)) Option {
	return func(c *Client) {
		prev := c.decorate
		c.decorate = func(r *http.Request) {
			if prev != nil {
				prev(r)
			}
			fn(r)
		}
	}
}

// WithErrorHook is called once per failed call (after retries).
func WithErrorHook(fn func(service string, err error)) Option {
	return func(c *Client) { c.onError = fn }
}

// New returns a client for baseURL. service names the vendor in errors.
func New(service, baseURL string, opts ...Option) *Client {
	c := &Client{
		service:      service,
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: defaultTimeout},
		maxAttempts:  defaultMaxAttempts,
		initialDelay: defaultInitialDelay,
		maxDelay:     defaultMaxDelay,
		sleep:        sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Service() string { return c.service }

// Do sends in (JSON encoded when non-nil) and decodes a 2xx body into out
// (when non-nil).
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	err := c.do(ctx, method, path, query, in, out)
	if err != nil && c.onError != nil {
		c.onError(c.service, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.service, err)
		}
		payload = b
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt, lastErr)); err != nil {
				return err
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return fmt.Errorf("%s: build request: %w", c.service, err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.decorate != nil {
			c.decorate(req)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("%s: request failed: %w", c.service, err)
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("%s: read response: %w", c.service, readErr)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			se := &statusErr{
				StatusError: StatusError{Service: c.service, StatusCode: resp.StatusCode, Body: truncate(string(respBody))},
				retryAfter:  parseRetryAfter(resp.Header.Get("Retry-After")),
			}
			lastErr = se
			if retryable(resp.StatusCode) {
				continue
			}
			return &se.StatusError
		}

		if out == nil || len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", c.service, err)
		}
		return nil
	}

	var se *statusErr
	if errors.As(lastErr, &se) {
		return &se.StatusError
	}
	return lastErr
}

// statusErr carries the Retry-After hint between attempts.
type statusErr struct {
	StatusError
	retryAfter time.Duration
}

func (c *Client) backoff(attempt int, lastErr error) time.Duration {
	var se *statusErr
	if errors.As(lastErr, &se) && se.retryAfter > 0 {
		return min(se.retryAfter, c.maxDelay)
	}
	d := c.initialDelay << (attempt - 1)
	if d > c.maxDelay || d < 0 {
		d = c.maxDelay
	}
	return d
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
