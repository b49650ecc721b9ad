// Package captcha solves challenges through a remote solving service
// speaking the in.php/res.php protocol.
package captcha

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Lothbrok303/lazabot-ubu/pkg/httpclient"
	"github.com/Lothbrok303/lazabot-ubu/pkg/log"
	"github.com/Lothbrok303/lazabot-ubu/pkg/metrics"
)

// APIKeyEnv names the environment variable holding the solver API key.
const APIKeyEnv = "LAZABOT_CAPTCHA_API_KEY"

var (
	// ErrSubmitFailed is returned when the service rejects a submission.
	ErrSubmitFailed = errors.New("captcha submission rejected")
	// ErrSolveFailed is returned when the service reports an unsolvable task.
	ErrSolveFailed = errors.New("captcha solve failed")
	// ErrTimeout is returned when polling exhausts without an answer.
	ErrTimeout = errors.New("captcha solve timed out")
)

// Solver answers challenges encountered during checkout.
type Solver interface {
	SolveImage(ctx context.Context, image []byte) (string, error)
	SolveRecaptchaV2(ctx context.Context, siteKey, pageURL string) (string, error)
	SolveRecaptchaV3(ctx context.Context, siteKey, pageURL, action string, minScore float64) (string, error)
}

const (
	defaultBaseURL     = "https://2captcha.com"
	defaultPollEvery   = 5 * time.Second
	defaultMaxPolls    = 60
	defaultCallTimeout = 30 * time.Second
)

// Remote solves captchas through a paid solving service.
type Remote struct {
	apiKey      string
	baseURL     string
	client      *httpclient.Client
	pollEvery   time.Duration
	maxPolls    int
	callTimeout time.Duration
}

// NewRemote creates a remote solver with the given API key.
func NewRemote(apiKey string) (*Remote, error) {
	client, err := httpclient.New("")
	if err != nil {
		return nil, err
	}
	client.WithRetryConfig(httpclient.RetryConfig{MaxRetries: 0, BaseDelay: time.Second, MaxDelay: time.Second, Multiplier: 1.0})

	return &Remote{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		client:      client,
		pollEvery:   defaultPollEvery,
		maxPolls:    defaultMaxPolls,
		callTimeout: defaultCallTimeout,
	}, nil
}

// RemoteFromEnv creates a remote solver keyed from the environment.
func RemoteFromEnv() (*Remote, error) {
	key := os.Getenv(APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%s is not set", APIKeyEnv)
	}
	return NewRemote(key)
}

// WithBaseURL overrides the service base URL, used by tests.
func (r *Remote) WithBaseURL(base string) *Remote {
	r.baseURL = strings.TrimSuffix(base, "/")
	return r
}

// WithPolling overrides the polling cadence, used by tests.
func (r *Remote) WithPolling(every time.Duration, maxPolls int) *Remote {
	r.pollEvery = every
	r.maxPolls = maxPolls
	return r
}

// SolveImage submits a base64 image challenge.
func (r *Remote) SolveImage(ctx context.Context, image []byte) (string, error) {
	params := url.Values{}
	params.Set("method", "base64")
	params.Set("body", base64.StdEncoding.EncodeToString(image))
	return r.solve(ctx, "image", params)
}

// SolveRecaptchaV2 submits a reCAPTCHA v2 challenge.
func (r *Remote) SolveRecaptchaV2(ctx context.Context, siteKey, pageURL string) (string, error) {
	params := url.Values{}
	params.Set("method", "userrecaptcha")
	params.Set("googlekey", siteKey)
	params.Set("pageurl", pageURL)
	return r.solve(ctx, "recaptcha_v2", params)
}

// SolveRecaptchaV3 submits a reCAPTCHA v3 challenge with an action and
// minimum score.
func (r *Remote) SolveRecaptchaV3(ctx context.Context, siteKey, pageURL, action string, minScore float64) (string, error) {
	params := url.Values{}
	params.Set("method", "userrecaptcha")
	params.Set("version", "v3")
	params.Set("googlekey", siteKey)
	params.Set("pageurl", pageURL)
	params.Set("action", action)
	params.Set("min_score", fmt.Sprintf("%.1f", minScore))
	return r.solve(ctx, "recaptcha_v3", params)
}

func (r *Remote) solve(ctx context.Context, kind string, params url.Values) (string, error) {
	token, err := r.doSolve(ctx, kind, params)
	if err != nil {
		metrics.CaptchaSolvesTotal.WithLabelValues("failure").Inc()
		return "", err
	}
	metrics.CaptchaSolvesTotal.WithLabelValues("success").Inc()
	return token, nil
}

func (r *Remote) doSolve(ctx context.Context, kind string, params url.Values) (string, error) {
	logger := log.WithComponent("captcha")
	params.Set("key", r.apiKey)

	id, err := r.submit(ctx, params)
	if err != nil {
		return "", err
	}
	logger.Debug().Str("kind", kind).Str("id", id).Msg("challenge submitted")

	for poll := 0; poll < r.maxPolls; poll++ {
		select {
		case <-time.After(r.pollEvery):
		case <-ctx.Done():
			return "", ctx.Err()
		}

		token, ready, err := r.fetch(ctx, id)
		if err != nil {
			return "", err
		}
		if ready {
			logger.Debug().Str("kind", kind).Str("id", id).Msg("challenge solved")
			return token, nil
		}
	}

	return "", fmt.Errorf("%w after %d polls", ErrTimeout, r.maxPolls)
}

func (r *Remote) submit(ctx context.Context, params url.Values) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	headers := http.Header{}
	headers.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(callCtx, http.MethodPost, r.baseURL+"/in.php", headers, []byte(params.Encode()), nil)
	if err != nil {
		return "", fmt.Errorf("challenge submission failed: %w", err)
	}

	body := strings.TrimSpace(resp.Text())
	if !strings.HasPrefix(body, "OK|") {
		return "", fmt.Errorf("%w: %s", ErrSubmitFailed, body)
	}
	return strings.TrimPrefix(body, "OK|"), nil
}

func (r *Remote) fetch(ctx context.Context, id string) (token string, ready bool, err error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	fetchURL := fmt.Sprintf("%s/res.php?key=%s&action=get&id=%s", r.baseURL, url.QueryEscape(r.apiKey), url.QueryEscape(id))
	resp, err := r.client.Do(callCtx, http.MethodGet, fetchURL, nil, nil, nil)
	if err != nil {
		return "", false, fmt.Errorf("challenge poll failed: %w", err)
	}

	body := strings.TrimSpace(resp.Text())
	switch {
	case body == "CAPCHA_NOT_READY":
		return "", false, nil
	case strings.HasPrefix(body, "OK|"):
		return strings.TrimPrefix(body, "OK|"), true, nil
	default:
		return "", false, fmt.Errorf("%w: %s", ErrSolveFailed, body)
	}
}

// Mock returns canned tokens; used in tests and when no API key is set.
type Mock struct {
	Token string
	Err   error
}

// NewMock creates a mock solver returning token.
func NewMock(token string) *Mock {
	return &Mock{Token: token}
}

func (m *Mock) SolveImage(ctx context.Context, image []byte) (string, error) {
	return m.Token, m.Err
}

func (m *Mock) SolveRecaptchaV2(ctx context.Context, siteKey, pageURL string) (string, error) {
	return m.Token, m.Err
}

func (m *Mock) SolveRecaptchaV3(ctx context.Context, siteKey, pageURL, action string, minScore float64) (string, error) {
	return m.Token, m.Err
}
