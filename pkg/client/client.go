// Package client talks to the asset worker and asset server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/manual-asset-pipeline/pkg/pipeline"
)

// Client is an HTTP client for the worker and server APIs
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewWithHTTPClient creates a new client with a custom HTTP client
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Build enqueues a manifest build on the worker
func (c *Client) Build(ctx context.Context, req pipeline.BuildRequest) (*pipeline.BuildResponse, error) {
	req.Job = pipeline.JobManifestBuild
	return c.submit(ctx, "/v1/build", req)
}

// Verify enqueues a manifest verification on the worker
func (c *Client) Verify(ctx context.Context, req pipeline.BuildRequest) (*pipeline.BuildResponse, error) {
	req.Job = pipeline.JobManifestVerify
	return c.submit(ctx, "/v1/verify", req)
}

func (c *Client) submit(ctx context.Context, path string, req pipeline.BuildRequest) (*pipeline.BuildResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp pipeline.BuildResponse
	if err := c.do(httpReq, http.StatusAccepted, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the state of a run started with Build or Verify
func (c *Client) Status(ctx context.Context, runID string) (*pipeline.RunStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/runs/"+url.PathEscape(runID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var st pipeline.RunStatus
	if err := c.do(httpReq, http.StatusOK, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Resolve asks the asset server for the variant path of logicalPath
func (c *Client) Resolve(ctx context.Context, logicalPath, size, format string) (*pipeline.ResolveResponse, error) {
	q := url.Values{"path": {logicalPath}}
	if size != "" {
		q.Set("size", size)
	}
	if format != "" {
		q.Set("format", format)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/resolve?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var res pipeline.ResolveResponse
	if err := c.do(httpReq, http.StatusOK, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
