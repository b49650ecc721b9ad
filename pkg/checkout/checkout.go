// Package checkout drives the retailer's purchase flow from cart to order
// confirmation as a fixed sequence of steps with per-step retries.
package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Lothbrok303/lazabot-ubu/pkg/captcha"
	"github.com/Lothbrok303/lazabot-ubu/pkg/httpclient"
	"github.com/Lothbrok303/lazabot-ubu/pkg/log"
	"github.com/Lothbrok303/lazabot-ubu/pkg/metrics"
	"github.com/Lothbrok303/lazabot-ubu/pkg/proxy"
	"github.com/Lothbrok303/lazabot-ubu/pkg/session"
	"github.com/Lothbrok303/lazabot-ubu/pkg/storage"
)

// Doer issues HTTP requests. Both httpclient.Client and stealth.Client
// satisfy it, so the engine can run with or without traffic shaping.
type Doer interface {
	Do(ctx context.Context, method, url string, headers http.Header, body []byte, ep *proxy.Endpoint) (*httpclient.Response, error)
}

// Product is the checkout view of a purchasable item.
type Product struct {
	ID       string
	Name     string
	URL      string
	Price    *float64
	Quantity int
}

// Account carries the purchasing identity.
type Account struct {
	ID              string
	Username        string
	PaymentMethod   string
	ShippingAddress string
}

// Result is the terminal outcome of one checkout flow.
type Result struct {
	Success   bool
	OrderID   string
	Error     string
	ElapsedMS int64
}

// Config tunes per-step retry budgets and backoff.
type Config struct {
	BaseURL string

	AddRetries        int
	URLRetries        int
	PaymentRetries    int
	SubmissionRetries int

	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64

	ChallengeTimeout time.Duration
}

// DefaultConfig returns the production retry budgets.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:           baseURL,
		AddRetries:        3,
		URLRetries:        2,
		PaymentRetries:    2,
		SubmissionRetries: 3,
		BaseDelay:         time.Second,
		MaxDelay:          10 * time.Second,
		Multiplier:        2.0,
		ChallengeTimeout:  120 * time.Second,
	}
}

// Engine executes checkout flows.
type Engine struct {
	client Doer
	solver captcha.Solver
	cfg    Config
	store  *storage.Store
}

// NewEngine creates a checkout engine. The solver handles any challenge the
// retailer raises mid-flow.
func NewEngine(client Doer, solver captcha.Solver, cfg Config) *Engine {
	return &Engine{client: client, solver: solver, cfg: cfg}
}

// WithStore records successful orders durably.
func (e *Engine) WithStore(store *storage.Store) *Engine {
	e.store = store
	return e
}

// InstantCheckout runs the full flow for one product and account. The result
// always carries elapsed milliseconds, success or not.
func (e *Engine) InstantCheckout(ctx context.Context, product Product, account Account, sess *session.Session) Result {
	start := time.Now()
	metrics.CheckoutAttemptsTotal.Inc()

	result := e.run(ctx, product, account, sess)
	result.ElapsedMS = time.Since(start).Milliseconds()

	outcome := "failure"
	if result.Success {
		outcome = "success"
	}
	metrics.CheckoutResultsTotal.WithLabelValues(outcome).Inc()
	metrics.CheckoutDuration.Observe(time.Since(start).Seconds())

	logger := log.WithProductID(product.ID)
	if result.Success {
		logger.Info().
			Str("order_id", result.OrderID).
			Int64("elapsed_ms", result.ElapsedMS).
			Msg("checkout succeeded")
		e.recordOrder(product, account, result)
	} else {
		logger.Warn().
			Str("error", result.Error).
			Int64("elapsed_ms", result.ElapsedMS).
			Msg("checkout failed")
	}
	return result
}

func (e *Engine) run(ctx context.Context, product Product, account Account, sess *session.Session) Result {
	if sess == nil || !sess.Valid {
		return Result{Error: "session-expired: session is not valid"}
	}
	token := sess.ID

	cartID, err := e.addToCart(ctx, product, token)
	if err != nil {
		return Result{Error: fmt.Sprintf("add-to-cart: %v", err)}
	}

	checkoutURL, err := e.checkoutURL(ctx, cartID)
	if err != nil {
		return Result{Error: fmt.Sprintf("get-checkout-url: %v", err)}
	}

	if err := e.setShipping(ctx, checkoutURL, account, token); err != nil {
		return Result{Error: fmt.Sprintf("set-shipping: %v", err)}
	}

	if err := e.setPayment(ctx, checkoutURL, account, token); err != nil {
		return Result{Error: fmt.Sprintf("set-payment: %v", err)}
	}

	challengeToken, err := e.resolveChallenge(ctx, checkoutURL)
	if err != nil {
		return Result{Error: fmt.Sprintf("challenge: %v", err)}
	}

	orderID, err := e.submit(ctx, checkoutURL, token, challengeToken)
	if err != nil {
		return Result{Error: fmt.Sprintf("submit: %v", err)}
	}

	return Result{Success: true, OrderID: orderID}
}

func (e *Engine) addToCart(ctx context.Context, product Product, token string) (string, error) {
	type reply struct {
		Success bool   `json:"success"`
		CartID  string `json:"cart_id"`
	}

	return retryStep(ctx, e.cfg, "add-to-cart", e.cfg.AddRetries, func() (string, error) {
		body, _ := json.Marshal(map[string]any{
			"product_id":    product.ID,
			"quantity":      product.Quantity,
			"session_token": token,
		})
		resp, err := e.postJSON(ctx, e.cfg.BaseURL+"/cart/add", body)
		if err != nil {
			return "", err
		}

		var r reply
		if err := json.Unmarshal(resp.Body, &r); err != nil {
			return "", fmt.Errorf("malformed cart response: %w", err)
		}
		if !r.Success || r.CartID == "" {
			return "", fmt.Errorf("cart rejected product (status %d)", resp.Status)
		}
		return r.CartID, nil
	})
}

func (e *Engine) checkoutURL(ctx context.Context, cartID string) (string, error) {
	type reply struct {
		CheckoutURL string `json:"checkout_url"`
	}

	return retryStep(ctx, e.cfg, "get-checkout-url", e.cfg.URLRetries, func() (string, error) {
		resp, err := e.client.Do(ctx, http.MethodGet, fmt.Sprintf("%s/cart/%s/checkout", e.cfg.BaseURL, cartID), nil, nil, nil)
		if err != nil {
			return "", err
		}

		var r reply
		if err := json.Unmarshal(resp.Body, &r); err != nil {
			return "", fmt.Errorf("malformed checkout-url response: %w", err)
		}
		if r.CheckoutURL == "" {
			return "", fmt.Errorf("no checkout url returned (status %d)", resp.Status)
		}
		return r.CheckoutURL, nil
	})
}

func (e *Engine) setShipping(ctx context.Context, checkoutURL string, account Account, token string) error {
	_, err := retryStep(ctx, e.cfg, "set-shipping", e.cfg.PaymentRetries, func() (struct{}, error) {
		body, _ := json.Marshal(map[string]string{
			"address":       account.ShippingAddress,
			"session_token": token,
		})
		resp, err := e.postJSON(ctx, checkoutURL+"/shipping", body)
		if err != nil {
			return struct{}{}, err
		}
		if !resp.IsSuccess() {
			return struct{}{}, fmt.Errorf("shipping rejected (status %d)", resp.Status)
		}
		return struct{}{}, nil
	})
	return err
}

func (e *Engine) setPayment(ctx context.Context, checkoutURL string, account Account, token string) error {
	_, err := retryStep(ctx, e.cfg, "set-payment", e.cfg.PaymentRetries, func() (struct{}, error) {
		body, _ := json.Marshal(map[string]string{
			"payment_method": account.PaymentMethod,
			"session_token":  token,
		})
		resp, err := e.postJSON(ctx, checkoutURL+"/payment", body)
		if err != nil {
			return struct{}{}, err
		}
		if !resp.IsSuccess() {
			return struct{}{}, fmt.Errorf("payment rejected (status %d)", resp.Status)
		}
		return struct{}{}, nil
	})
	return err
}

// challengeInfo is the retailer's description of the challenge guarding
// order submission.
type challengeInfo struct {
	HasCaptcha  bool   `json:"has_captcha"`
	CaptchaType string `json:"captcha_type"`
	SiteKey     string `json:"site_key"`
	PageURL     string `json:"page_url"`
}

func (e *Engine) resolveChallenge(ctx context.Context, checkoutURL string) (string, error) {
	info, err := retryStep(ctx, e.cfg, "detect-challenge", e.cfg.URLRetries, func() (challengeInfo, error) {
		resp, err := e.client.Do(ctx, http.MethodGet, checkoutURL+"/captcha-check", nil, nil, nil)
		if err != nil {
			return challengeInfo{}, err
		}
		var info challengeInfo
		if err := json.Unmarshal(resp.Body, &info); err != nil {
			return challengeInfo{}, fmt.Errorf("malformed challenge response: %w", err)
		}
		return info, nil
	})
	if err != nil {
		return "", err
	}

	if !info.HasCaptcha {
		return "", nil
	}

	solveCtx, cancel := context.WithTimeout(ctx, e.cfg.ChallengeTimeout)
	defer cancel()

	switch info.CaptchaType {
	case "recaptcha_v2":
		if info.SiteKey == "" {
			return "", fmt.Errorf("challenge missing site key")
		}
		pageURL := info.PageURL
		if pageURL == "" {
			pageURL = checkoutURL
		}
		return e.solver.SolveRecaptchaV2(solveCtx, info.SiteKey, pageURL)
	case "image":
		return "", fmt.Errorf("unsupported challenge type %q", info.CaptchaType)
	default:
		return "", fmt.Errorf("unknown challenge type %q", info.CaptchaType)
	}
}

func (e *Engine) submit(ctx context.Context, checkoutURL, token, challengeToken string) (string, error) {
	type reply struct {
		Success bool   `json:"success"`
		OrderID string `json:"order_id"`
	}

	return retryStep(ctx, e.cfg, "submit", e.cfg.SubmissionRetries, func() (string, error) {
		payload := map[string]string{"session_token": token}
		if challengeToken != "" {
			payload["captcha_token"] = challengeToken
		}
		body, _ := json.Marshal(payload)

		resp, err := e.postJSON(ctx, checkoutURL+"/submit", body)
		if err != nil {
			return "", err
		}

		var r reply
		if err := json.Unmarshal(resp.Body, &r); err != nil {
			return "", fmt.Errorf("malformed submit response: %w", err)
		}
		if !r.Success || r.OrderID == "" {
			return "", fmt.Errorf("submission rejected (status %d)", resp.Status)
		}
		return r.OrderID, nil
	})
}

func (e *Engine) postJSON(ctx context.Context, url string, body []byte) (*httpclient.Response, error) {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	return e.client.Do(ctx, http.MethodPost, url, headers, body, nil)
}

func (e *Engine) recordOrder(product Product, account Account, result Result) {
	if e.store == nil {
		return
	}

	var price float64
	if product.Price != nil {
		price = *product.Price
	}
	err := e.store.InsertOrder(&storage.OrderRecord{
		OrderID:   result.OrderID,
		ProductID: product.ID,
		AccountID: account.ID,
		Status:    "placed",
		Price:     price,
		Quantity:  product.Quantity,
	})
	if err != nil {
		log.WithProductID(product.ID).Warn().Err(err).Msg("failed to record order")
	}
}

// retryStep runs fn up to retries+1 times with exponential backoff capped at
// the configured max delay.
func retryStep[T any](ctx context.Context, cfg Config, name string, retries int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 0; attempt <= retries; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		log.WithComponent("checkout").Debug().
			Str("step", name).
			Int("attempt", attempt+1).
			Err(err).
			Msg("step attempt failed")

		if attempt == retries {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, lastErr
}
