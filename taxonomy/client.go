package taxonomy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// APIError is a non-2xx response from the eBird API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("eBird API error (status %d): %s", e.StatusCode, e.Body)
}

// retryable reports whether another attempt could succeed
func (e *APIError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client fetches the taxonomy from the eBird v2 API
type Client struct {
	config     Config
	httpClient *http.Client
	cache      *cache.Cache
	limiter    *rate.Limiter
	group      singleflight.Group
}

// NewClient creates a new eBird client. A nil httpClient gets one with the
// configured timeout.
func NewClient(config Config, httpClient *http.Client) *Client {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaults.RateLimit
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.RetryBackoff < 0 {
		config.RetryBackoff = 0
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		cache:      cache.New(config.CacheTTL, config.CacheTTL*2),
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// FetchTaxonomy retrieves the complete eBird taxonomy for the configured locale.
// Results are cached in memory and concurrent callers share one request.
func (c *Client) FetchTaxonomy(ctx context.Context) ([]Entry, error) {
	cacheKey := "taxonomy:" + c.config.Locale
	if cached, found := c.cache.Get(cacheKey); found {
		if entries, ok := cached.([]Entry); ok {
			return entries, nil
		}
	}

	v, err, _ := c.group.Do(cacheKey, func() (interface{}, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()

		var entries []Entry
		if err := c.doRequestWithRetry(reqCtx, c.taxonomyURL(), &entries); err != nil {
			return nil, err
		}
		c.cache.Set(cacheKey, entries, cache.DefaultExpiration)
		log.Printf("taxonomy: fetched %d eBird taxonomy entries", len(entries))
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Entry), nil
}

func (c *Client) taxonomyURL() string {
	q := url.Values{}
	q.Set("fmt", "json")
	if c.config.Locale != "" {
		q.Set("locale", c.config.Locale)
	}
	return c.config.BaseURL + "/ref/taxonomy/ebird?" + q.Encode()
}

// doRequestWithRetry retries network errors, 5xx and 429 with linear backoff
func (c *Client) doRequestWithRetry(ctx context.Context, rawURL string, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		err := c.doRequest(ctx, rawURL, result)
		if err == nil {
			return nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("taxonomy request cancelled: %w", err)
		}
		if attempt == c.config.MaxRetries-1 {
			break
		}

		backoff := time.Duration(attempt+1) * c.config.RetryBackoff
		log.Printf("taxonomy: request failed (attempt %d/%d), retrying in %s: %v", attempt+1, c.config.MaxRetries, backoff, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("taxonomy request cancelled: %w", ctx.Err())
		}
	}
	return fmt.Errorf("taxonomy request failed after %d attempts: %w", c.config.MaxRetries, lastErr)
}

func (c *Client) doRequest(ctx context.Context, rawURL string, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("X-eBirdApiToken", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			log.Printf("Warning: taxonomy: eBird rejected the request (status %d), check EBIRD_API_KEY", resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Body: preview}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to parse taxonomy response: %w", err)
	}
	return nil
}
