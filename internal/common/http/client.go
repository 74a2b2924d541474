package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodyBytes bounds how much of an upstream response is read.
const maxBodyBytes = 4 << 20

// StatusError is returned for a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the request could succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type Client struct {
	httpClient *http.Client
	headers    map[string]string
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers:    map[string]string{},
	}
}

// NewClientFrom wraps an existing *http.Client, e.g. one from oauth2.
func NewClientFrom(hc *http.Client) *Client {
	return &Client{httpClient: hc, headers: map[string]string{}}
}

// WithHeader returns a copy of c that sets name on every request.
func (c *Client) WithHeader(name, value string) *Client {
	headers := make(map[string]string, len(c.headers)+1)
	for k, v := range c.headers {
		headers[k] = v
	}
	headers[name] = value
	return &Client{httpClient: c.httpClient, headers: headers}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for k, v := range c.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.Do(req.WithContext(ctx))
}

// PostJSON sends payload as JSON and returns the accepted response body.
// Any status outside acceptStatus (default: 2xx) yields a *StatusError.
func (c *Client) PostJSON(ctx context.Context, url string, payload interface{}, acceptStatus ...int) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.roundTrip(req, acceptStatus)
}

func (c *Client) GetJSON(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	return c.roundTrip(req, nil)
}

func (c *Client) roundTrip(req *http.Request, acceptStatus []int) ([]byte, int, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if !accepted(resp.StatusCode, acceptStatus) {
		return nil, resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 256)}
	}
	return data, resp.StatusCode, nil
}

func accepted(status int, acceptStatus []int) bool {
	if len(acceptStatus) == 0 {
		return status >= 200 && status < 300
	}
	for _, s := range acceptStatus {
		if s == status {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
