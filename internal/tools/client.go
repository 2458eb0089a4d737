package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/lexhub/agentrun/pkg/schema"
)

const (
	connectTimeout  = 30 * time.Second
	readTimeout     = 120 * time.Second
	maxResponseBody = 10 * 1024 * 1024 // 10MB
)

// Client is the shared HTTP transport for remote tools. Connection setup is
// bounded separately from the overall read budget so that a slow LLM response
// does not get confused with an unreachable service.
type Client struct {
	http *http.Client
}

// NewClient creates a Client with the default timeouts.
func NewClient() *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext
	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   readTimeout,
		},
	}
}

// PostJSON sends a JSON POST to url and decodes the JSON response body.
// Auth, when non-empty, is forwarded as a bearer token. A non-2xx response
// is a tool execution error carrying the status code.
func (c *Client) PostJSON(ctx context.Context, url string, payload any, auth string) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeToolExecution, "marshal request payload").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeToolExecution, "create request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeToolExecution, "request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeToolExecution, "read response body").WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, schema.NewErrorf(schema.ErrCodeToolExecution, "%s returned %d", url, resp.StatusCode).
			WithDetails(map[string]any{
				"status_code": resp.StatusCode,
				"body":        truncate(string(respBody), 512),
			})
	}

	if len(respBody) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(respBody) {
		return nil, schema.NewError(schema.ErrCodeToolExecution,
			fmt.Sprintf("%s returned non-JSON response", url))
	}
	return json.RawMessage(respBody), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
