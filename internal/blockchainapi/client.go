package blockchainapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client is an HTTP client for a blockchain integration API with retry on 429 and 503.
type Client struct {
	blockchainType string
	baseURL        string
	httpClient     *http.Client
	maxRetries     int
	baseDelay      time.Duration
	log            *slog.Logger
}

// NewClient creates a new blockchain integration API client.
func NewClient(blockchainType, baseURL string, maxRetries int, baseDelay time.Duration) *Client {
	return &Client{
		blockchainType: blockchainType,
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		maxRetries:     maxRetries,
		baseDelay:      baseDelay,
		log:            slog.With("component", "blockchainapi", "blockchain", blockchainType),
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// retryDelay is the exponential backoff for attempt, stretched to the
// integration's Retry-After seconds when it asks for longer.
func (c *Client) retryDelay(attempt int, h http.Header) time.Duration {
	delay := c.baseDelay * time.Duration(1<<uint(attempt))
	if secs, err := strconv.Atoi(h.Get("Retry-After")); err == nil {
		delay = max(delay, time.Duration(secs)*time.Second)
	}
	return delay
}

// get performs a GET request against the integration, retrying while it is
// throttled or unavailable.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	url := c.baseURL + path

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("creating %s request: %w", c.blockchainType, err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("calling %s integration: %w", c.blockchainType, err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s response: %w", c.blockchainType, err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case !retryable(resp.StatusCode):
			return nil, fmt.Errorf("%s integration: HTTP %d from %s: %s", c.blockchainType, resp.StatusCode, url, string(body))
		case attempt >= c.maxRetries:
			return nil, fmt.Errorf("%s integration: HTTP %d at %s after %d attempts", c.blockchainType, resp.StatusCode, url, attempt+1)
		}

		delay := c.retryDelay(attempt, resp.Header)
		c.log.Warn("integration throttled, retrying",
			"path", path, "status", resp.StatusCode, "attempt", attempt+1, "delay", delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// getJSON performs a GET request and unmarshals the JSON response.
func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("parsing JSON from %s: %w", path, err)
	}
	return nil
}

// IsAlive checks the integration's liveness endpoint.
func (c *Client) IsAlive(ctx context.Context) error {
	if _, err := c.get(ctx, "/api/isalive"); err != nil {
		return fmt.Errorf("%s integration is not alive: %w", c.blockchainType, err)
	}
	return nil
}
