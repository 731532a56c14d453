package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mailhook/pkg/sentinel"
)

const cloudflareAPIBase = "https://api.cloudflare.com/client/v4"

// Cloudflare hosts functions as Workers scripts. All calls go through the
// v4 API under the configured account.
type Cloudflare struct {
	http      *http.Client
	baseURL   string
	apiToken  string
	accountID string
	subdomain string
}

type CloudflareOption func(*Cloudflare)

// WithBaseURL points the adapter at a different API endpoint, for tests.
func WithBaseURL(u string) CloudflareOption {
	return func(c *Cloudflare) { c.baseURL = strings.TrimSuffix(u, "/") }
}

func WithCloudflareHTTPClient(h *http.Client) CloudflareOption {
	return func(c *Cloudflare) { c.http = h }
}

func NewCloudflare(apiToken, accountID, subdomain string, opts ...CloudflareOption) *Cloudflare {
	c := &Cloudflare{
		http:      &http.Client{},
		baseURL:   cloudflareAPIBase,
		apiToken:  apiToken,
		accountID: accountID,
		subdomain: subdomain,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the common Cloudflare v4 response shape.
type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Cloudflare) UploadScript(ctx context.Context, name, code string) error {
	if code == "" {
		code = defaultCode
	}
	_, err := c.do(ctx, http.MethodPut, c.scriptURL(name), "application/javascript", strings.NewReader(code))
	if err != nil {
		return fmt.Errorf("upload script %q: %w", name, err)
	}
	return nil
}

func (c *Cloudflare) Deploy(ctx context.Context, name, environment string) (string, error) {
	body, err := json.Marshal(map[string]string{"environment": environment})
	if err != nil {
		return "", fmt.Errorf("deploy script %q: %w", name, err)
	}
	result, err := c.do(ctx, http.MethodPost, c.scriptURL(name)+"/deployments", "application/json", strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("deploy script %q: %w", name, err)
	}
	var deployment struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(result, &deployment); err != nil {
		return "", fmt.Errorf("deploy script %q: decode result: %w", name, err)
	}
	return deployment.ID, nil
}

func (c *Cloudflare) ScriptDetails(ctx context.Context, name string) (*ScriptDetails, error) {
	result, err := c.do(ctx, http.MethodGet, c.scriptURL(name), "", nil)
	if err != nil {
		return nil, fmt.Errorf("script details %q: %w", name, err)
	}
	var details ScriptDetails
	if err := json.Unmarshal(result, &details); err != nil {
		return nil, fmt.Errorf("script details %q: decode result: %w", name, err)
	}
	if details.Name == "" {
		details.Name = name
	}
	return &details, nil
}

func (c *Cloudflare) ScriptContent(ctx context.Context, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.scriptURL(name)+"/content", nil)
	if err != nil {
		return "", fmt.Errorf("script content %q: %w", name, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("script content %q: %w", name, sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", sentinel.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("script content %q: unexpected status %d", name, resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("script content %q: %w", name, err)
	}
	return string(content), nil
}

func (c *Cloudflare) DeleteScript(ctx context.Context, name string) error {
	if _, err := c.do(ctx, http.MethodDelete, c.scriptURL(name), "", nil); err != nil {
		return fmt.Errorf("delete script %q: %w", name, err)
	}
	return nil
}

func (c *Cloudflare) InvokeURL(name string) string {
	return fmt.Sprintf("https://%s.%s.workers.dev", name, c.subdomain)
}

func (c *Cloudflare) scriptURL(name string) string {
	return fmt.Sprintf("%s/accounts/%s/workers/scripts/%s", c.baseURL, c.accountID, name)
}

func (c *Cloudflare) do(ctx context.Context, method, url, contentType string, body io.Reader) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, sentinel.ErrNotFound
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !env.Success {
		if len(env.Errors) > 0 {
			return nil, fmt.Errorf("api error %d: %s", env.Errors[0].Code, env.Errors[0].Message)
		}
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return env.Result, nil
}
