package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	monitor "strongbot/internal/monitor/domain"
)

const (
	defaultBaseURL = "https://api.firecrawl.dev"
	sourceName     = "firecrawl"
)

// Client calls the Firecrawl extract API.
type Client struct {
	baseURL      string
	apiKey       string
	client       *http.Client
	pollInterval time.Duration
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithPollInterval sets how often an asynchronous extract job is polled.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// NewClient constructs a client.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("firecrawl: empty api key")
	}
	c := &Client{
		baseURL:      defaultBaseURL,
		apiKey:       apiKey,
		client:       &http.Client{Timeout: 30 * time.Second},
		pollInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ExtractRequest is the body of POST /v1/extract.
type ExtractRequest struct {
	URLs   []string       `json:"urls"`
	Prompt string         `json:"prompt,omitempty"`
	Schema map[string]any `json:"schema,omitempty"`
}

type extractResponse struct {
	Success bool           `json:"success"`
	ID      string         `json:"id"`
	Status  string         `json:"status"`
	Data    map[string]any `json:"data"`
	Error   string         `json:"error"`
}

// Extract submits a job and waits for its data.
func (c *Client) Extract(ctx context.Context, req ExtractRequest) (map[string]any, error) {
	var started extractResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/extract", req, &started); err != nil {
		return nil, err
	}
	if !started.Success {
		return nil, fmt.Errorf("firecrawl: extract rejected: %s", started.Error)
	}
	if started.Data != nil && (started.Status == "" || started.Status == "completed") {
		return started.Data, nil
	}
	if started.ID == "" {
		return nil, fmt.Errorf("%w: extract returned neither data nor job id", monitor.ErrMalformedResponse)
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, monitor.NewTransportError(sourceName, ctx.Err())
		case <-ticker.C:
		}
		var job extractResponse
		if err := c.doJSON(ctx, http.MethodGet, "/v1/extract/"+started.ID, nil, &job); err != nil {
			return nil, err
		}
		switch job.Status {
		case "completed":
			if job.Data == nil {
				return nil, fmt.Errorf("%w: completed job without data", monitor.ErrMalformedResponse)
			}
			return job.Data, nil
		case "failed", "cancelled":
			return nil, fmt.Errorf("firecrawl: extract job %s %s: %s", started.ID, job.Status, job.Error)
		}
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return monitor.NewTransportError(sourceName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return monitor.NewTransportError(sourceName, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode))
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("firecrawl: %s %s: status %d", method, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", monitor.ErrMalformedResponse, err)
	}
	return nil
}
