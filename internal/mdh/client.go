// Package mdh is a client for the research platform's administration API:
// participants, survey events and the device data point endpoints.
package mdh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 30 * time.Second
	// maxBodyBytes caps how much of a response is read into memory.
	maxBodyBytes = 64 << 20
)

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("mdh: decode response: %w", err)
	}
	return nil
}

// Client issues authenticated GET requests against the API base URL.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewClient returns a client for baseURL whose requests time out after timeout
// (30s when timeout is not positive). The transport is traced with otelhttp.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Logger: logger,
	}
}

// Get performs one GET of resourcePath (relative to BaseURL) with the bearer token and query.
// When raise is true a non-2xx status is returned as *StatusError; otherwise the response is
// returned as-is for the caller to inspect. Transport failures are always errors.
func (c *Client) Get(ctx context.Context, token, resourcePath string, query url.Values, raise bool) (*Response, error) {
	u := c.BaseURL + "/" + strings.TrimPrefix(resourcePath, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("mdh: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mdh: GET %s: %w", resourcePath, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("mdh: read body: %w", err)
	}
	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}

	c.Logger.Debug("api request",
		zap.String("path", resourcePath),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
	)

	if raise && !out.OK() {
		return out, &StatusError{Path: resourcePath, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return out, nil
}

// ProjectPath builds "api/v{version}/administration/projects/{projectID}" followed by elems.
func ProjectPath(version int, projectID string, elems ...string) string {
	p := fmt.Sprintf("api/v%d/administration/projects/%s", version, url.PathEscape(projectID))
	for _, e := range elems {
		p += "/" + url.PathEscape(e)
	}
	return p
}
