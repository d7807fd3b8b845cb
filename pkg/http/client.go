package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ClientOption configures Client.
type ClientOption func(*Client)

// Client calls a service that answers with the APIResponse envelope.
type Client struct {
	baseURL  string
	timeout  time.Duration
	attempts int
	client   *http.Client
}

// ResponseError is a non-2xx envelope returned by the server.
type ResponseError struct {
	Status  int
	Message string
	Errors  []ValidationError
}

func (e *ResponseError) Error() string {
	if len(e.Errors) > 0 && e.Errors[0].Message != "" {
		return fmt.Sprintf("status %d: %s: %s", e.Status, e.Message, e.Errors[0].Message)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		timeout:  30 * time.Second,
		attempts: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client = &http.Client{Timeout: c.timeout}
	return c
}

// Get fetches path and decodes the envelope's data into dest.
func (c *Client) Get(ctx context.Context, path string, dest interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, dest)
}

// Post sends body as JSON to path and decodes the envelope's data into dest.
// A nil body sends an empty request.
func (c *Client) Post(ctx context.Context, path string, body, dest interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, dest)
}

// do retries transport failures only. Any response from the server,
// including a 5xx, is final.
func (c *Client) do(ctx context.Context, method, path string, body, dest interface{}) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal json: %w", err)
		}
		payload = b
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.attempts-1)), ctx)

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("new request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()
		return backoff.Permanent(decodeEnvelope(resp, dest))
	}, policy)
}

func decodeEnvelope(resp *http.Response, dest interface{}) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var env struct {
		Status  int             `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &ResponseError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode json: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rerr := &ResponseError{Status: resp.StatusCode, Message: env.Message}
		_ = json.Unmarshal(env.Data, &rerr.Errors)
		return rerr
	}
	if dest == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithAttempts sets how many times a request is tried when the server
// cannot be reached.
func WithAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}
