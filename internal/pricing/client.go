package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"feedfunnel/internal"
	"feedfunnel/internal/config"
	"feedfunnel/internal/metrics"
)

// Client talks to the resale platform's price API. Every request waits for
// the rate limiter, gets its own timeout and is retried on network errors,
// 429 and 5xx.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	retries    int
	backoff    time.Duration
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

type pricePayload struct {
	Price    *decimal.Decimal `json:"price"`
	Currency string           `json:"currency"`
}

var errNotFound = errors.New("not found")

func NewClient(cfg config.Config) *Client {
	rps := cfg.ResolverRateLimitRPS
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL:    cfg.ResolverAPIBaseURL,
		token:      cfg.ResolverAPIToken,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		timeout:    time.Duration(cfg.ResolverTimeoutMs) * time.Millisecond,
		retries:    cfg.ResolverRetries,
		backoff:    time.Duration(cfg.ResolverBackoffMs) * time.Millisecond,
	}
}

// Lookup implements Resolver against GET market-price.
func (c *Client) Lookup(ctx context.Context, q Query) (Lookup, error) {
	params := map[string]string{}
	switch {
	case q.EAN != "":
		params["ean"] = q.EAN
	case q.Brand != "" && q.Model != "":
		params["brand"] = q.Brand
		params["model"] = q.Model
	default:
		return Lookup{}, nil
	}

	start := time.Now()
	body, err := c.fetchJSON(ctx, "market-price", params)
	switch {
	case errors.Is(err, errNotFound):
		metrics.ObserveResolverCall("not_found", time.Since(start))
		return Lookup{}, nil
	case err != nil:
		metrics.ObserveResolverCall("error", time.Since(start))
		return Lookup{}, err
	}

	var payload pricePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.ObserveResolverCall("error", time.Since(start))
		return Lookup{}, fmt.Errorf("decode market price: %w", err)
	}
	if payload.Price == nil {
		metrics.ObserveResolverCall("not_found", time.Since(start))
		return Lookup{}, nil
	}
	metrics.ObserveResolverCall("hit", time.Since(start))
	return Lookup{Price: *payload.Price, Found: true, Source: "api"}, nil
}

func (c *Client) fetchJSON(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	if strings.TrimSpace(c.token) == "" {
		return nil, errors.New("missing RESOLVER_API_TOKEN")
	}

	baseURL := strings.TrimRight(c.baseURL, "/") + "/"
	u, err := url.Parse(baseURL + endpoint)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	attempts := c.retries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, attempt); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, status, err := c.do(ctx, u.String())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if status == http.StatusNotFound {
			return nil, errNotFound
		}
		if status < 200 || status >= 300 {
			if isRetryableStatus(status) {
				lastErr = fmt.Errorf("resolver status %d", status)
				continue
			}
			return nil, fmt.Errorf("resolver api error: status=%d body=%s", status, string(body))
		}

		var apiResp apiResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, err
		}
		if !apiResp.Success {
			return nil, fmt.Errorf("resolver api unsuccessful: %s", string(apiResp.Errors))
		}
		return apiResp.Data, nil
	}

	if lastErr == nil {
		lastErr = errors.New("resolver request failed")
	}
	return nil, fmt.Errorf("%w: %d attempts: %v", internal.ErrTransientResolver, attempts, lastErr)
}

func (c *Client) do(ctx context.Context, target string) ([]byte, int, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	backoff := c.backoff * time.Duration(1<<(attempt-2))
	if c.backoff > 0 {
		backoff += time.Duration(rand.Int63n(int64(c.backoff)/10 + 1))
	}
	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
