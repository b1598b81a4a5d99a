package imagestore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// StatusError is returned when the image URL answers with anything but 200.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to download image from %s: HTTP status %d", e.URL, e.StatusCode)
}

// Fetcher downloads remote images into a Store.
type Fetcher struct {
	store      *Store
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// FetcherOption is a functional option for configuring Fetcher.
type FetcherOption func(*Fetcher)

// WithFetchHTTPClient sets a custom HTTP client. A nil client is ignored.
func WithFetchHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// WithFetchTimeout bounds a whole download. Zero means no limit. The caller's
// client from WithFetchHTTPClient is never modified.
func WithFetchTimeout(timeout time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.timeout = timeout
	}
}

// WithFetchLogger sets a custom logger.
func WithFetchLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher writing into store.
func NewFetcher(store *Store, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		store:      store,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.timeout > 0 {
		client := *f.httpClient
		client.Timeout = f.timeout
		f.httpClient = &client
	}
	return f
}

// Store returns the store the fetcher writes into.
func (f *Fetcher) Store() *Store {
	return f.store
}

// Fetch downloads url once. On 200 the body is saved under a new identifier which
// is returned. Any other outcome returns "" and an error, and leaves no file behind.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.logger.Info("downloading image", slog.String("url", url))

	if err := f.store.EnsureDir(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create image request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Warn("image download failed", slog.String("url", url), slog.String("error", err.Error()))
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("image download failed", slog.String("url", url), slog.Int("status", resp.StatusCode))
		return "", &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read image body: %w", err)
	}

	uid, err := f.store.Save(data)
	if err != nil {
		return "", err
	}

	f.logger.Info("image stored",
		slog.String("uid", uid),
		slog.String("path", f.store.Path(uid)),
		slog.Int("size_bytes", len(data)),
	)
	return uid, nil
}
