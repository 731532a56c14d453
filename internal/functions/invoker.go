package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mailhook/internal/registry/models"
)

// maxFunctionResponse bounds how much of the function output is accepted as
// a replacement payload.
const maxFunctionResponse = 1 << 20

const defaultInvokeTimeout = 10 * time.Second

// InvokeResult is the outcome of a single function invocation. StatusCode is
// nil when no response was received.
type InvokeResult struct {
	StatusCode *int
	Body       []byte
	Err        error
}

// TransformedPayload returns the function response when it can replace the
// webhook payload: a 2xx status carrying valid JSON. Any other outcome means
// the original payload stays in effect.
func (r InvokeResult) TransformedPayload() ([]byte, bool) {
	if r.Err != nil || r.StatusCode == nil || *r.StatusCode < 200 || *r.StatusCode >= 300 {
		return nil, false
	}
	if !json.Valid(r.Body) {
		return nil, false
	}
	return r.Body, true
}

// Invoker posts message payloads to deployed functions. One attempt per
// message; a failed invocation never blocks delivery.
type Invoker struct {
	http    *http.Client
	timeout time.Duration
}

type InvokerOption func(*Invoker)

func WithInvokeTimeout(d time.Duration) InvokerOption {
	return func(i *Invoker) { i.timeout = d }
}

func WithInvokerHTTPClient(h *http.Client) InvokerOption {
	return func(i *Invoker) { i.http = h }
}

func NewInvoker(opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		http:    &http.Client{},
		timeout: defaultInvokeTimeout,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

func (i *Invoker) Invoke(ctx context.Context, ref *models.FunctionRef, payload []byte) InvokeResult {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ref.InvokeURL, bytes.NewReader(payload))
	if err != nil {
		return InvokeResult{Err: fmt.Errorf("build function request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.http.Do(req)
	if err != nil {
		return InvokeResult{Err: fmt.Errorf("invoke function: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFunctionResponse))
	if err != nil {
		return InvokeResult{StatusCode: &resp.StatusCode, Err: fmt.Errorf("read function response: %w", err)}
	}
	return InvokeResult{StatusCode: &resp.StatusCode, Body: body}
}
