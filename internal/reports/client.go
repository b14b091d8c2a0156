package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// StatusError is returned by Client when the server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dashboard data: unexpected status %d", e.StatusCode)
}

// Client fetches the dashboard document. It issues a single request and never retries.
type Client struct {
	URL  string
	HTTP *http.Client
}

// NewClient builds a Client whose transport is traced with otelhttp.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		URL: url,
		HTTP: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Fetch retrieves and decodes the dashboard document.
func (c *Client) Fetch(ctx context.Context) (Dashboard, error) {
	if c == nil || strings.TrimSpace(c.URL) == "" {
		return Dashboard{}, fmt.Errorf("dashboard client: url not configured")
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return Dashboard{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return Dashboard{}, fmt.Errorf("fetch dashboard data: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Dashboard{}, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	var out Dashboard
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Dashboard{}, fmt.Errorf("decode dashboard data: %w", err)
	}
	return out, nil
}
