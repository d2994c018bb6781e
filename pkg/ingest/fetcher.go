package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// MaxMediaSize bounds downloaded payloads
	MaxMediaSize = 5 * 1024 * 1024 // 5MB

	defaultFetchTimeout = 15 * time.Second
)

// Fetcher dereferences a media reference into payload bytes
type Fetcher interface {
	Fetch(ctx context.Context, mediaRef string) ([]byte, error)
}

// HTTPFetcher downloads media over HTTP with a bounded timeout and size
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTP fetcher
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch downloads the media reference
func (f *HTTPFetcher) Fetch(ctx context.Context, mediaRef string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaRef, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, MaxMediaSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read media body: %w", err)
	}
	if len(payload) > MaxMediaSize {
		return nil, fmt.Errorf("media size exceeds maximum %d", MaxMediaSize)
	}

	return payload, nil
}
