// Package geocode turns GPS coordinates into a place name through the
// Nominatim reverse geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// ErrNoPlace is returned when the coordinates have no city, town or village
var ErrNoPlace = errors.New("no place name for coordinates")

// Config holds configuration for the Nominatim client
type Config struct {
	BaseURL      string
	UserAgent    string // Nominatim rejects requests without an identifying agent
	Language     string
	Timeout      time.Duration
	CacheTTL     time.Duration
	RateLimit    float64 // requests per second
	MaxRetries   int
	RetryBackoff time.Duration // multiplied by the attempt number
	Precision    int           // decimal places coordinates are rounded to
}

// DefaultConfig returns a Config that stays inside the public Nominatim
// usage policy of one request per second
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://nominatim.openstreetmap.org",
		UserAgent:    "birdphotos",
		Language:     "en",
		Timeout:      10 * time.Second,
		CacheTTL:     7 * 24 * time.Hour,
		RateLimit:    1,
		MaxRetries:   3,
		RetryBackoff: time.Second,
		Precision:    3, // about 100m
	}
}

// APIError is a non-2xx response from Nominatim
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nominatim error (status %d): %s", e.StatusCode, e.Body)
}

func (e *APIError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type reverseResponse struct {
	Error   string            `json:"error"`
	Address map[string]string `json:"address"`
}

// placeKeys are the address fields tried in order for a place name
var placeKeys = []string{"city", "town", "village"}

// Client resolves coordinates to place names. Results, including misses,
// are cached by rounded coordinates and concurrent lookups of the same
// point share one request.
type Client struct {
	config     Config
	httpClient *http.Client
	cache      *cache.Cache
	limiter    *rate.Limiter
	group      singleflight.Group
}

// NewClient creates a new Nominatim client. A nil httpClient gets one with
// the configured timeout.
func NewClient(config Config, httpClient *http.Client) *Client {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
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
	if config.Precision <= 0 {
		config.Precision = defaults.Precision
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

// ReverseGeocode returns the city, town or village at the given position,
// or ErrNoPlace when Nominatim knows none.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", fmt.Errorf("coordinates out of range: %f,%f", lat, lon)
	}
	latStr := strconv.FormatFloat(lat, 'f', c.config.Precision, 64)
	lonStr := strconv.FormatFloat(lon, 'f', c.config.Precision, 64)
	cacheKey := latStr + "," + lonStr

	if cached, found := c.cache.Get(cacheKey); found {
		return placeOrMiss(cached.(string))
	}

	v, err, _ := c.group.Do(cacheKey, func() (interface{}, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()

		var resp reverseResponse
		if err := c.doRequestWithRetry(reqCtx, c.reverseURL(latStr, lonStr), &resp); err != nil {
			return nil, err
		}
		place := ""
		if resp.Error == "" {
			for _, key := range placeKeys {
				if name := strings.TrimSpace(resp.Address[key]); name != "" {
					place = name
					break
				}
			}
		}
		c.cache.Set(cacheKey, place, cache.DefaultExpiration)
		return place, nil
	})
	if err != nil {
		return "", err
	}
	return placeOrMiss(v.(string))
}

func placeOrMiss(place string) (string, error) {
	if place == "" {
		return "", ErrNoPlace
	}
	return place, nil
}

func (c *Client) reverseURL(lat, lon string) string {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", lat)
	q.Set("lon", lon)
	q.Set("zoom", "10")
	if c.config.Language != "" {
		q.Set("accept-language", c.config.Language)
	}
	return c.config.BaseURL + "/reverse?" + q.Encode()
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
			return fmt.Errorf("geocode request cancelled: %w", err)
		}
		if attempt == c.config.MaxRetries-1 {
			break
		}

		backoff := time.Duration(attempt+1) * c.config.RetryBackoff
		log.Printf("geocode: request failed (attempt %d/%d), retrying in %s: %v", attempt+1, c.config.MaxRetries, backoff, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("geocode request cancelled: %w", ctx.Err())
		}
	}
	return fmt.Errorf("geocode request failed after %d attempts: %w", c.config.MaxRetries, lastErr)
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
	req.Header.Set("User-Agent", c.config.UserAgent)

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
		return &APIError{StatusCode: resp.StatusCode, Body: preview}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to parse reverse geocoding response: %w", err)
	}
	return nil
}
