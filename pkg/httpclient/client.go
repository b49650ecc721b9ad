package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/Lothbrok303/lazabot-ubu/pkg/log"
	"github.com/Lothbrok303/lazabot-ubu/pkg/metrics"
	"github.com/Lothbrok303/lazabot-ubu/pkg/proxy"
)

const (
	// DefaultUserAgent identifies un-customized clients.
	DefaultUserAgent = "Lazabot/1.0"

	requestTimeout  = 30 * time.Second
	connectTimeout  = 10 * time.Second
	maxRedirectHops = 10
)

// RetryConfig controls the exponential backoff applied to transport failures.
// Status codes never drive retries; responses are returned as-is.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryConfig mirrors the production defaults: 3 extra attempts,
// 1s base delay doubling up to 10s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
	}
}

// Response is a fully-read HTTP response. It is created by the client,
// consumed by the caller, and never mutated.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// IsSuccess reports whether the status is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.Status >= 200 && r.Status < 300
}

// Client executes HTTP requests with cookie persistence, optional per-call
// proxy binding, and retry on transport errors.
type Client struct {
	hc        *http.Client
	jar       http.CookieJar
	userAgent string
	retry     RetryConfig
}

// New creates a client with a fresh cookie jar.
func New(userAgent string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return NewWithJar(userAgent, jar)
}

// NewWithJar creates a client around a pre-built cookie jar, used when
// restoring a persisted session.
func NewWithJar(userAgent string, jar http.CookieJar) (*Client, error) {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		hc: &http.Client{
			Transport:     baseTransport(nil),
			Jar:           jar,
			Timeout:       requestTimeout,
			CheckRedirect: limitRedirects,
		},
		jar:       jar,
		userAgent: userAgent,
		retry:     DefaultRetryConfig(),
	}, nil
}

// WithRetryConfig replaces the retry policy and returns the client.
func (c *Client) WithRetryConfig(rc RetryConfig) *Client {
	c.retry = rc
	return c
}

// Jar returns the client's cookie jar.
func (c *Client) Jar() http.CookieJar {
	return c.jar
}

// UserAgent returns the configured user agent.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Do executes a request. When a proxy endpoint is supplied, a fresh transport
// bound to that proxy (with its own jar) is used for this call only.
// Transport and body-read errors are retried per the retry policy; any HTTP
// status is returned without retry.
func (c *Client) Do(ctx context.Context, method, rawURL string, headers http.Header, body []byte, ep *proxy.Endpoint) (*Response, error) {
	hc := c.hc
	if ep != nil {
		proxyURL, err := ep.URL()
		if err != nil {
			return nil, fmt.Errorf("invalid proxy endpoint: %w", err)
		}
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		hc = &http.Client{
			Transport:     baseTransport(proxyURL),
			Jar:           jar,
			Timeout:       requestTimeout,
			CheckRedirect: limitRedirects,
		}
	}

	return c.executeWithRetry(ctx, hc, method, rawURL, headers, body)
}

func (c *Client) executeWithRetry(ctx context.Context, hc *http.Client, method, rawURL string, headers http.Header, body []byte) (*Response, error) {
	logger := log.WithComponent("httpclient")

	var lastErr error
	delay := c.retry.BaseDelay

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		resp, err := c.execute(ctx, hc, method, rawURL, headers, body)
		metrics.RecordRequest(err == nil)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		logger.Warn().
			Int("attempt", attempt+1).
			Str("method", method).
			Str("url", rawURL).
			Err(err).
			Msg("request attempt failed")

		if attempt == c.retry.MaxRetries {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		delay = time.Duration(float64(delay) * c.retry.Multiplier)
		if delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.retry.MaxRetries+1, lastErr)
}

func (c *Client) execute(ctx context.Context, hc *http.Client, method, rawURL string, headers http.Header, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Body:    data,
	}, nil
}

func baseTransport(proxyURL *url.URL) *http.Transport {
	t := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: connectTimeout,
	}
	if proxyURL != nil {
		t.Proxy = http.ProxyURL(proxyURL)
	}
	return t
}

func limitRedirects(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirectHops {
		return fmt.Errorf("stopped after %d redirects", maxRedirectHops)
	}
	return nil
}
