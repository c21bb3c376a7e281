package netmon

import (
	"context"
	"net/http"
	"time"
)

// Probe answers a single question: can the upstream be reached right now?
type Probe interface {
	Check(ctx context.Context) bool
}

// HTTPProbe checks connectivity by issuing a HEAD request against the
// upstream health path. Any response at all counts as reachable; even an
// error status proves the transport is up.
type HTTPProbe struct {
	url    string
	client *http.Client
}

// NewHTTPProbe creates a probe for the given absolute URL.
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	return &HTTPProbe{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Check reports whether the upstream responded.
func (p *HTTPProbe) Check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context) bool

// Check implements Probe.
func (f ProbeFunc) Check(ctx context.Context) bool {
	return f(ctx)
}
