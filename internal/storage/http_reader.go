package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPReader provides read access to a deployed site over HTTP. Keys are
// appended to the base URL.
type HTTPReader struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPReader creates a new HTTP-based reader
func NewHTTPReader(baseURL string) *HTTPReader {
	return &HTTPReader{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewHTTPReaderWithClient creates an HTTP reader with a custom HTTP client
func NewHTTPReaderWithClient(baseURL string, httpClient *http.Client) *HTTPReader {
	return &HTTPReader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (r *HTTPReader) url(key string) string {
	return r.baseURL + "/" + strings.TrimPrefix(key, "/")
}

// GetReader downloads the object at key
func (r *HTTPReader) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url(key), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// Exists checks if the object at key exists using a HEAD request
func (r *HTTPReader) Exists(ctx context.Context, key string) (bool, error) {
	resp, err := r.head(ctx, key)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}

	return false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
}

// GetMetadata returns size, content type and ETag from a HEAD request
func (r *HTTPReader) GetMetadata(ctx context.Context, key string) (*Metadata, error) {
	resp, err := r.head(ctx, key)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return &Metadata{
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
	}, nil
}

func (r *HTTPReader) head(ctx context.Context, key string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.url(key), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s: %w", key, err)
	}

	return resp, nil
}
