// Package upstream talks to the Ageo portal. It rebuilds queued submissions
// into the multipart/urlencoded bodies the portal expects and classifies
// failures into transport errors (retryable, queueable) and application
// errors (real rejections, never queued).
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/civitasgis/ageo-edge/internal/types"
)

const csrfFieldName = "csrfmiddlewaretoken"

// AppError is an application-level rejection: the portal was reachable and
// answered with an error status. Replaying it would resubmit invalid data,
// so it is surfaced to the caller instead of being queued.
type AppError struct {
	StatusCode int
	Body       string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("upstream rejected request: HTTP %d", e.StatusCode)
}

// IsAppError reports whether err is an application-level rejection.
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// Submitter delivers a queue record to the portal. Implemented by Client;
// the sync engine and interceptor depend on this interface so tests can
// substitute fakes.
type Submitter interface {
	Submit(ctx context.Context, rec *types.QueueRecord, atts []types.Attachment) error
}

// Client is the HTTP client for the upstream portal.
type Client struct {
	baseURL   string
	csrfToken string
	client    *http.Client
}

// NewClient creates a portal client. timeout bounds every request so one
// hung replay cannot starve a sync pass.
func NewClient(baseURL, csrfToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		csrfToken: csrfToken,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the configured portal base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Submit delivers a queue record, rebuilding the request body from the
// record's kind. A nil return means the portal acknowledged the submission
// with a success status.
func (c *Client) Submit(ctx context.Context, rec *types.QueueRecord, atts []types.Attachment) error {
	var body io.Reader
	var contentType string
	var err error

	switch rec.Kind {
	case types.KindCitizenData:
		body, contentType = c.urlencodedBody(rec.Fields)
	case types.KindRequestWithAttachments:
		body, contentType, err = c.multipartBody(rec.Fields, atts)
	default: // KindForm and anything unrecognized replays as multipart fields
		body, contentType, err = c.multipartBody(rec.Fields, nil)
	}
	if err != nil {
		return fmt.Errorf("build body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, rec.Method, c.baseURL+rec.URL, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if c.csrfToken != "" {
		req.Header.Set("X-CSRFToken", c.csrfToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Transport failure: the request never produced a response.
		return fmt.Errorf("deliver %s: %w", rec.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &AppError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	return nil
}

// Forward relays an arbitrary inbound request to the portal, preserving
// method, path, query, headers and body. Used by the gateway passthrough.
func (c *Client) Forward(ctx context.Context, r *http.Request, body io.Reader) (*http.Response, error) {
	target := c.baseURL + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vv := range r.Header {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}

	return c.client.Do(req)
}

// urlencodedBody encodes fields as application/x-www-form-urlencoded,
// preserving field order and appending the anti-forgery token.
func (c *Client) urlencodedBody(fields []types.Field) (io.Reader, string) {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(f.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.Value))
	}
	if c.csrfToken != "" {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(csrfFieldName)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(c.csrfToken))
	}
	return strings.NewReader(b.String()), "application/x-www-form-urlencoded"
}

// multipartBody encodes fields and attachments as multipart form data. File
// parts carry the original filename and content type captured at queue time.
func (c *Client) multipartBody(fields []types.Field, atts []types.Attachment) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f.Name, err)
		}
	}
	if c.csrfToken != "" {
		if err := w.WriteField(csrfFieldName, c.csrfToken); err != nil {
			return nil, "", fmt.Errorf("write csrf field: %w", err)
		}
	}

	for _, att := range atts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(att.Field), escapeQuotes(att.Filename)))
		h.Set("Content-Type", att.ContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", att.Field, err)
		}
		if _, err := part.Write(att.Data); err != nil {
			return nil, "", fmt.Errorf("write part %s: %w", att.Field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
