package stealth

import (
	"context"
	"net/http"

	"github.com/Lothbrok303/lazabot-ubu/pkg/httpclient"
	"github.com/Lothbrok303/lazabot-ubu/pkg/proxy"
)

// Client wraps the HTTP client, stamping fingerprint headers on every
// request and pacing requests like a human.
type Client struct {
	inner       *httpclient.Client
	fingerprint Fingerprint
	behavior    *Behavior
}

// NewClient wraps inner with a random fingerprint and default pacing.
func NewClient(inner *httpclient.Client) *Client {
	return &Client{
		inner:       inner,
		fingerprint: RandomFingerprint(),
		behavior:    NewBehavior(DefaultBehaviorConfig()),
	}
}

// WithFingerprint pins a specific fingerprint.
func (c *Client) WithFingerprint(fp Fingerprint) *Client {
	c.fingerprint = fp
	return c
}

// WithBehavior replaces the pacing generator.
func (c *Client) WithBehavior(b *Behavior) *Client {
	c.behavior = b
	return c
}

// Fingerprint returns the identity currently in use.
func (c *Client) Fingerprint() Fingerprint {
	return c.fingerprint
}

// Do issues a paced request carrying the fingerprint headers. Caller headers
// win on conflict.
func (c *Client) Do(ctx context.Context, method, url string, headers http.Header, body []byte, ep *proxy.Endpoint) (*httpclient.Response, error) {
	merged := c.fingerprint.Headers()
	for name, values := range headers {
		merged.Del(name)
		for _, v := range values {
			merged.Add(name, v)
		}
	}

	if err := c.behavior.PreRequestDelay(ctx); err != nil {
		return nil, err
	}

	resp, err := c.inner.Do(ctx, method, url, merged, body, ep)
	if err != nil {
		return nil, err
	}

	if err := c.behavior.PostRequestDelay(ctx); err != nil {
		return nil, err
	}
	return resp, nil
}
