// Package client talks to a running auctionsim server and drives a bidding
// agent against it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/talgya/clock-auction/internal/market"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	RetryableStatuses []int
}

// DefaultRetryConfig returns the retry settings used by New.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		RetryableStatuses: []int{
			http.StatusRequestTimeout,
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// Client is a thin JSON client for the auction API with retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryConfig
}

// New creates a client for the server at baseURL (e.g. http://localhost:8080).
func New(baseURL string, timeout time.Duration) *Client {
	return NewWithRetry(baseURL, timeout, DefaultRetryConfig())
}

// NewWithRetry creates a client with custom retry settings.
func NewWithRetry(baseURL string, timeout time.Duration, retry RetryConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry,
	}
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	if len(e.Body) > 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// State fetches the current market snapshot.
func (c *Client) State(ctx context.Context) (market.State, error) {
	var out struct {
		State market.State `json:"state"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/auction", nil, &out); err != nil {
		return market.State{}, err
	}
	return out.State, nil
}

// SubmitBid posts a bid and returns the market's verdict on it. The bid is
// resent only after a 429; any other failure is returned as is, since the
// server may already hold the bid.
func (c *Client) SubmitBid(ctx context.Context, bid market.Bid) (market.BidOutcome, error) {
	var out struct {
		Outcome string `json:"outcome"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auction/bid", bid, &out); err != nil {
		return market.BidDiscarded, err
	}
	switch out.Outcome {
	case market.BidAccepted.String():
		return market.BidAccepted, nil
	case market.BidDiscarded.String():
		return market.BidDiscarded, nil
	default:
		return market.BidDiscarded, fmt.Errorf("unexpected bid outcome %q", out.Outcome)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
	}

	// A POST that reached the server may already have been applied, so only
	// a 429 (rejected before processing) is safe to resend.
	idempotent := method == http.MethodGet

	url := c.baseURL + path
	backoff := c.retry.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.DebugContext(ctx, "retrying request",
				"attempt", attempt,
				"method", method,
				"url", url,
				"backoff", backoff,
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = min(backoff*2, c.retry.MaxBackoff)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if !idempotent {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		if c.shouldRetry(idempotent, resp.StatusCode) {
			resp.Body.Close()
			lastErr = fmt.Errorf("retryable status code: %d", resp.StatusCode)
			continue
		}
		return decodeResponse(resp, result)
	}
	return fmt.Errorf("max retries exceeded for %s: %w", url, lastErr)
}

func (c *Client) shouldRetry(idempotent bool, status int) bool {
	if !idempotent {
		return status == http.StatusTooManyRequests && slices.Contains(c.retry.RetryableStatuses, status)
	}
	return slices.Contains(c.retry.RetryableStatuses, status)
}

func decodeResponse(resp *http.Response, result any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{StatusCode: resp.StatusCode, Body: b}
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
