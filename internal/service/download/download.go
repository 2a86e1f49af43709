package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/oshokin/macdeploy/internal/logger"
)

var (
	// errBadHTTPStatus is returned when the server answers with anything but 200.
	errBadHTTPStatus = errors.New("unexpected http status")
	// errNoAttemptsConfigured is returned when the retry budget is not positive.
	errNoAttemptsConfigured = errors.New("download retries must be positive")
)

const (
	// partialSuffix marks an in-flight transfer. The file is renamed into
	// place only after the body has been fully written, so a failed run
	// never promotes partial state.
	partialSuffix = ".partial"

	// defaultRetryDelay is the pause between transfer attempts.
	defaultRetryDelay = 5 * time.Second

	// imagePermissions is applied to the downloaded disk image.
	imagePermissions os.FileMode = 0o644
)

// Client fetches installer images over HTTP with a connect timeout and a
// bounded retry budget.
type Client struct {
	// httpClient performs the actual requests.
	httpClient *http.Client
	// retries is the maximum number of transfer attempts.
	retries int
	// retryDelay is the pause between attempts.
	retryDelay time.Duration
}

// Option configures the download client.
type Option func(*Client)

// WithRetryDelay overrides the pause between transfer attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(c *Client) {
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

// WithHTTPClient substitutes the underlying HTTP client, used by tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient creates a download client. The connect timeout caps connection
// establishment only; an in-progress body transfer is never interrupted by it.
func NewClient(connectTimeout time.Duration, retries int, opts ...Option) *Client {
	dialer := &net.Dialer{Timeout: connectTimeout}

	//nolint:exhaustruct // Remaining transport fields keep their zero values on purpose.
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: connectTimeout,
	}

	client := &Client{
		httpClient: &http.Client{Transport: transport},
		retries:    retries,
		retryDelay: defaultRetryDelay,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// FetchLastModified issues a HEAD request and returns the raw Last-Modified
// header value. An absent header yields an empty string, which callers treat
// like any other value when comparing against stored metadata.
func (c *Client) FetchLastModified(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, http.NoBody)
	if err != nil {
		return "", err
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch remote metadata: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s, %s: %w", rawURL, response.Status, errBadHTTPStatus)
	}

	return response.Header.Get("Last-Modified"), nil
}

// Fetch downloads the resource to the destination path, retrying failed
// attempts up to the configured budget. The transfer streams into a sibling
// .partial file and is renamed into place only on success.
func (c *Client) Fetch(ctx context.Context, rawURL, destination string) error {
	if c.retries <= 0 {
		return errNoAttemptsConfigured
	}

	var lastErr error

	for attempt := 1; attempt <= c.retries; attempt++ {
		if attempt > 1 {
			logger.InfoKV(ctx, "Retrying download",
				"attempt", attempt, "of", c.retries, "delay", c.retryDelay.String())

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		lastErr = c.fetchOnce(ctx, rawURL, destination)
		if lastErr == nil {
			return nil
		}

		logger.WarnKV(ctx, "Download attempt failed", "attempt", attempt, "error", lastErr)
	}

	return fmt.Errorf("download failed after %d attempts: %w", c.retries, lastErr)
}

// FetchBytes downloads a small resource (a manifest, not an image) fully
// into memory, with the same retry budget as Fetch.
func (c *Client) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	if c.retries <= 0 {
		return nil, errNoAttemptsConfigured
	}

	var lastErr error

	for attempt := 1; attempt <= c.retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		var data []byte

		data, lastErr = c.fetchBytesOnce(ctx, rawURL)
		if lastErr == nil {
			return data, nil
		}

		logger.WarnKV(ctx, "Fetch attempt failed", "attempt", attempt, "error", lastErr)
	}

	return nil, fmt.Errorf("fetch failed after %d attempts: %w", c.retries, lastErr)
}

// fetchBytesOnce performs a single in-memory fetch attempt.
func (c *Client) fetchBytesOnce(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s, %s: %w", rawURL, response.Status, errBadHTTPStatus)
	}

	return io.ReadAll(response.Body)
}

// fetchOnce performs a single transfer attempt.
func (c *Client) fetchOnce(ctx context.Context, rawURL, destination string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return err
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s, %s: %w", rawURL, response.Status, errBadHTTPStatus)
	}

	partialPath := destination + partialSuffix

	outputFile, err := os.OpenFile(filepath.Clean(partialPath),
		os.O_CREATE|os.O_TRUNC|os.O_WRONLY, imagePermissions)
	if err != nil {
		return err
	}

	if _, err = io.Copy(outputFile, response.Body); err != nil {
		_ = outputFile.Close()
		_ = os.Remove(partialPath)

		return fmt.Errorf("write image: %w", err)
	}

	if err = outputFile.Close(); err != nil {
		_ = os.Remove(partialPath)

		return err
	}

	return os.Rename(partialPath, destination)
}
