// Package httpjson provides a small JSON-over-HTTP fetch client used by
// the discovery and userinfo code.
package httpjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/vyrodovalexey/oidcrp/internal/observability"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1024 * 1024

// ErrFetch is the sentinel error all fetch failures match.
var ErrFetch = errors.New("json fetch failed")

// FetchError describes a failed JSON fetch.
type FetchError struct {
	URL        string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Message)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error kind.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

// Client fetches JSON documents over HTTP.
type Client struct {
	httpClient *http.Client
	logger     observability.Logger
}

// Option is a functional option for the client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new JSON fetch client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetJSON fetches url and decodes the response body into out. The
// response content type must match one of accepted; when accepted is
// empty, application/json is required.
func (c *Client) GetJSON(ctx context.Context, url string, out any, accepted ...string) error {
	start := time.Now()

	if len(accepted) == 0 {
		accepted = []string{"application/json"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return &FetchError{URL: url, Message: "failed to create request", Cause: err}
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{URL: url, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if err := checkContentType(contentType, accepted); err != nil {
		return &FetchError{URL: url, StatusCode: resp.StatusCode, Message: err.Error()}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &FetchError{URL: url, StatusCode: resp.StatusCode, Message: "failed to read response", Cause: err}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &FetchError{URL: url, StatusCode: resp.StatusCode, Message: "failed to parse response", Cause: err}
	}

	c.logger.Debug("JSON document fetched",
		observability.String("url", url),
		observability.Duration("duration", time.Since(start)),
	)

	return nil
}

// checkContentType verifies the media type against the accepted list.
// Media type parameters (charset and the like) are ignored.
func checkContentType(contentType string, accepted []string) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("invalid content type %q: %w", contentType, err)
	}

	for _, want := range accepted {
		if mediaType == want {
			return nil
		}
	}

	return fmt.Errorf("unexpected content type %q", contentType)
}
