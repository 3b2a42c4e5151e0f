package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gm-agent-org/mcp-guard/pkg/api/dto"
	"github.com/gm-agent-org/mcp-guard/pkg/api/middleware"
	"github.com/gm-agent-org/mcp-guard/pkg/consent"
)

// ErrNotFound is returned when the approval is unknown or already decided.
var ErrNotFound = errors.New("approval not found or already decided")

// StatusError is an unexpected HTTP status from the decision API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	var resp dto.ErrorResponse
	if json.Unmarshal([]byte(e.Body), &resp) == nil && resp.Error != "" {
		return fmt.Sprintf("server returned %d: %s", e.Code, resp.Error)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, strings.TrimSpace(e.Body))
}

// Client wraps HTTP access to the mcp-guard decision API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string, timeout time.Duration) (*Client, error) {
	normalized, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    normalized,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// BaseURL returns the normalized server URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Get issues a GET request to the given path.
func (c *Client) Get(ctx context.Context, path string) (int, []byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post issues a POST request to the given path.
func (c *Client) Post(ctx context.Context, path string, body any) (int, []byte, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Delete issues a DELETE request to the given path.
func (c *Client) Delete(ctx context.Context, path string) (int, []byte, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBytes)
	}

	req, err := c.newRequest(ctx, method, path, bodyReader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target := strings.TrimRight(c.baseURL, "/")
	if path != "" {
		target = target + "/" + strings.TrimLeft(path, "/")
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set(middleware.APIKeyHeader, c.apiKey)
	}
	return req, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("server URL is empty")
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		raw = strings.TrimRight(raw, "/")
	} else if strings.HasPrefix(raw, ":") {
		raw = "http://localhost" + raw
	} else {
		raw = "http://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid server URL: %q", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

// getJSON issues a GET and decodes a 200 response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	status, body, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &StatusError{Code: status, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// Health checks that the gateway's API is up.
func (c *Client) Health(ctx context.Context) (*dto.HealthResponse, error) {
	var resp dto.HealthResponse
	if err := c.getJSON(ctx, "/healthz", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListApprovals returns the pending approvals, oldest first.
func (c *Client) ListApprovals(ctx context.Context) ([]consent.Approval, error) {
	var resp dto.ApprovalListResponse
	if err := c.getJSON(ctx, "/api/v1/approvals", &resp); err != nil {
		return nil, err
	}
	return resp.Approvals, nil
}

// Decide approves or denies one pending request.
func (c *Client) Decide(ctx context.Context, id string, approve bool) (*dto.DecisionResponse, error) {
	status, body, err := c.Post(ctx, "/api/v1/approvals/"+url.PathEscape(id)+"/decision", dto.DecisionRequest{Approve: &approve})
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	default:
		return nil, &StatusError{Code: status, Body: string(body)}
	}

	var resp dto.DecisionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &resp, nil
}

// ReloadPolicy asks the gateway to re-read its policy file.
func (c *Client) ReloadPolicy(ctx context.Context) (*dto.ReloadResponse, error) {
	status, body, err := c.Post(ctx, "/api/v1/policy/reload", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{Code: status, Body: string(body)}
	}
	var resp dto.ReloadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &resp, nil
}

// Stats returns the gateway's traffic counters.
func (c *Client) Stats(ctx context.Context) (*dto.StatsResponse, error) {
	var resp dto.StatsResponse
	if err := c.getJSON(ctx, "/api/v1/stats", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearCache drops every remembered decision.
func (c *Client) ClearCache(ctx context.Context) (int, error) {
	status, body, err := c.Delete(ctx, "/api/v1/cache")
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, &StatusError{Code: status, Body: string(body)}
	}
	var resp dto.ClearResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("parse response: %w", err)
	}
	return resp.Cleared, nil
}
