// Package client implements the listing API as a page source: one GET per
// page with rate limit gating, transport retries and metrics.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/netpager/pkg/pagination"
	"github.com/Sternrassler/netpager/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ListingPath is the listing endpoint below the base URL.
const ListingPath = "/getallfeaturetheme"

// Prometheus metrics for listing API requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netpager_client_requests_total",
		Help: "Total listing API requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "netpager_client_request_duration_seconds",
		Help:    "Listing API request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netpager_client_errors_total",
		Help: "Total listing API errors by class",
	}, []string{"class"})
)

// Post is one listing item. Posts are equal when their IDs are.
type Post struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Thumbnail  string `json:"thumbnail"`
	Author     string `json:"author"`
	Score      int    `json:"score"`
	CreatedUTC int64  `json:"created_utc"`
}

// Equal reports whether p and other are the same post.
func (p Post) Equal(other Post) bool {
	return p.ID == other.ID
}

type listingResponse struct {
	Data struct {
		Children []struct {
			Data Post `json:"data"`
		} `json:"children"`
		After  json.RawMessage `json:"after"`
		Before json.RawMessage `json:"before"`
	} `json:"data"`
}

func (r *listingResponse) posts() []Post {
	posts := make([]Post, 0, len(r.Data.Children))
	for _, child := range r.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts
}

// hasMore is true when the listing names a next page.
func (r *listingResponse) hasMore() bool {
	after := bytes.TrimSpace(r.Data.After)
	return len(after) > 0 && !bytes.Equal(after, []byte("null"))
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the listing API, e.g. "https://api.example.com/v1"
	BaseURL string

	// User-Agent header sent with every request
	UserAgent string

	// Timeout bounds one HTTP attempt (default: 30s)
	Timeout time.Duration

	// RateLimiter gates requests on the shared request budget (optional)
	RateLimiter *ratelimit.Tracker

	// Retry controls transport retries (default: DefaultRetryConfig)
	Retry RetryConfig
}

// DefaultConfig returns a configuration with default timeout and retries.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Client fetches listing pages over HTTP.
type Client struct {
	httpClient *http.Client
	endpoint   *url.URL
	config     Config
	logger     zerolog.Logger
}

var _ pagination.Source[Post] = (*Client)(nil)

// New creates a new listing API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	endpoint := *base
	endpoint.Path = strings.TrimSuffix(base.Path, "/") + ListingPath

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		endpoint:   &endpoint,
		config:     cfg,
		logger:     log.With().Str("component", "client").Logger(),
	}, nil
}

// FetchPage requests page of listing key with limit items per page. Failures
// are *pagination.FetchError values: non-2xx answers are server failures
// carrying the status code, everything else is a transport failure.
func (c *Client) FetchPage(ctx context.Context, key string, page, limit int) (pagination.Page[Post], error) {
	if err := c.allow(ctx); err != nil {
		return pagination.Page[Post]{}, pagination.NewTransportError(err)
	}

	reqURL := c.pageURL(key, page, limit)

	var result pagination.Page[Post]
	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		var attemptErr error
		result, attemptErr = c.get(ctx, reqURL, key, page)
		return attemptErr
	})
	if err != nil {
		return pagination.Page[Post]{}, toFetchError(err)
	}
	return result, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) pageURL(key string, page, limit int) string {
	u := *c.endpoint
	q := u.Query()
	q.Set("id", key)
	q.Set("page", strconv.Itoa(page))
	q.Set("pcount", strconv.Itoa(limit))
	u.RawQuery = q.Encode()
	return u.String()
}

// allow consults the rate limiter. An unreachable Redis does not stop
// requests; an exhausted budget does.
func (c *Client) allow(ctx context.Context) error {
	if c.config.RateLimiter == nil {
		return nil
	}
	err := c.config.RateLimiter.Allow(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ratelimit.ErrBlocked):
		requestsTotal.WithLabelValues("rate_limited").Inc()
		c.logger.Warn().Err(err).Msg("Request blocked by rate limiter")
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		c.logger.Warn().Err(err).Msg("Rate limit check failed, sending request anyway")
		return nil
	}
}

func (c *Client) get(ctx context.Context, reqURL, key string, page int) (pagination.Page[Post], error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return pagination.Page[Post]{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	requestDuration.Observe(elapsed.Seconds())
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Warn().Err(err).Str("key", key).Int("page", page).Dur("duration", elapsed).Msg("HTTP request failed")
		return pagination.Page[Post]{}, err
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug().
		Str("key", key).
		Int("page", page).
		Int("status", resp.StatusCode).
		Dur("duration", elapsed).
		Msg("Listing request")

	if c.config.RateLimiter != nil {
		if err := c.config.RateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		class := classifyStatus(resp.StatusCode)
		if class == "" {
			class = ErrorClassClient
		}
		errorsTotal.WithLabelValues(string(class)).Inc()
		return pagination.Page[Post]{}, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    resp.Status,
		}
	}

	var body listingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return pagination.Page[Post]{}, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "decode listing",
			Err:        err,
		}
	}

	return pagination.Page[Post]{Items: body.posts(), HasMore: body.hasMore()}, nil
}

// toFetchError maps a request error to the failure kinds the pager shows.
func toFetchError(err error) *pagination.FetchError {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.ErrorClass != ErrorClassDecode {
		return pagination.NewServerError(apiErr.StatusCode, err)
	}
	return pagination.NewTransportError(err)
}
