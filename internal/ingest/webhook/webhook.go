// Package webhook posts the final message payload to the destination
// configured for a domain. One attempt per message, no retries: redelivery
// is driven by the upstream trigger, and the delivery record decides whether
// a redelivered message still needs the POST.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseSnapshot bounds how much of the webhook response body is kept
// on the delivery record.
const maxResponseSnapshot = 4 << 10

const defaultTimeout = 10 * time.Second

// Result captures the outcome of a single webhook attempt. StatusCode is nil
// when no HTTP response was received (connection failure or timeout).
type Result struct {
	StatusCode *int
	Body       string
	Err        error
}

// Succeeded reports whether the endpoint acknowledged the payload with a 2xx.
func (r Result) Succeeded() bool {
	return r.Err == nil && r.StatusCode != nil && *r.StatusCode >= 200 && *r.StatusCode < 300
}

type Client struct {
	http    *http.Client
	timeout time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deliver posts payload to url as JSON. A non-2xx response is not an error:
// the status and body are recorded and the caller decides what it means.
func (c *Client) Deliver(ctx context.Context, url string, payload []byte) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Result{Err: fmt.Errorf("build webhook request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Err: fmt.Errorf("webhook timed out after %s: %w", c.timeout, err)}
		}
		return Result{Err: fmt.Errorf("webhook unreachable: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSnapshot))
	if err != nil {
		return Result{StatusCode: &resp.StatusCode, Err: fmt.Errorf("read webhook response: %w", err)}
	}
	return Result{StatusCode: &resp.StatusCode, Body: string(body)}
}
