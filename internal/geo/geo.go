// Package geo resolves addresses to coordinates and back through the
// portal's geocoding endpoints. Lookups are online-only; a failed call is
// reported to the caller, never queued.
package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	geocodePath        = "/ageo/geocode/"
	reverseGeocodePath = "/ageo/reverse-geocode/"
)

// Result is one resolved location.
type Result struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

// Client calls the portal geocoding endpoints.
type Client struct {
	baseURL   string
	csrfToken string
	client    *http.Client
}

// NewClient builds a geocoding client for the portal at baseURL.
func NewClient(baseURL, csrfToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		csrfToken: csrfToken,
		client:    &http.Client{Timeout: timeout},
	}
}

// Geocode resolves a free-form address to coordinates.
func (c *Client) Geocode(ctx context.Context, address string) (*Result, error) {
	var reply struct {
		Success bool    `json:"success"`
		Result  *Result `json:"result"`
		Error   string  `json:"error"`
	}
	err := c.post(ctx, geocodePath, map[string]any{"address": address}, &reply)
	if err != nil {
		return nil, err
	}
	if !reply.Success || reply.Result == nil {
		return nil, fmt.Errorf("geocode %q: %s", address, orUnknown(reply.Error))
	}
	return reply.Result, nil
}

// ReverseGeocode resolves coordinates to a street address.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	var reply struct {
		Success bool   `json:"success"`
		Address string `json:"address"`
		Error   string `json:"error"`
	}
	err := c.post(ctx, reverseGeocodePath, map[string]any{"lat": lat, "lng": lng}, &reply)
	if err != nil {
		return "", err
	}
	if !reply.Success {
		return "", fmt.Errorf("reverse geocode (%f, %f): %s", lat, lng, orUnknown(reply.Error))
	}
	return reply.Address, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if c.csrfToken != "" {
		req.Header.Set("X-CSRFToken", c.csrfToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("call %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func orUnknown(msg string) string {
	if msg == "" {
		return "unknown error"
	}
	return msg
}
