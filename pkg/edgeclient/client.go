// Package edgeclient is a small HTTP client for the ageo-edge control API.
// The CLI subcommands use it; kiosk-side tooling can too.
package edgeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a running ageo-edge daemon.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New creates a client for the daemon at baseURL. apiKey may be empty when
// the daemon runs without auth.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Health checks that the daemon is up.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var resp Health
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status reports connectivity, queue availability and pending count.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var resp Status
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Queue lists pending records and queue statistics.
func (c *Client) Queue(ctx context.Context) (*QueueListing, error) {
	var resp QueueListing
	if err := c.do(ctx, http.MethodGet, "/api/v1/queue", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TriggerSync forces a sync pass and returns its outcome.
func (c *Client) TriggerSync(ctx context.Context) (*SyncStats, error) {
	var resp SyncStats
	if err := c.do(ctx, http.MethodPost, "/api/v1/sync", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CacheStatus reports cache generation and contents.
func (c *Client) CacheStatus(ctx context.Context) (*CacheStatus, error) {
	var resp CacheStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/cache", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Activate tells the daemon to activate its configured cache generation,
// deleting entries from older ones. Returns the number deleted.
func (c *Client) Activate(ctx context.Context) (int, error) {
	var resp struct {
		Deleted int `json:"deleted"`
	}
	body := map[string]string{"type": "SKIP_WAITING"}
	if err := c.do(ctx, http.MethodPost, "/api/v1/control", body, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseProblem(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// APIError is a non-2xx reply from the daemon.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("edge API error %d: %s", e.Status, e.Detail)
}

func parseProblem(resp *http.Response) error {
	var p struct {
		Detail string `json:"detail"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &p); err != nil || p.Detail == "" {
		p.Detail = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Detail: p.Detail}
}
