package feed

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	userAgent             = "feedsync"
	defaultTimeout        = 30 * time.Second
	defaultInitialBackoff = 500 * time.Millisecond
)

type Downloader struct {
	client         *http.Client
	maxRetries     int
	initialBackoff time.Duration
}

func NewDownloader(client *http.Client, maxRetries int) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Downloader{
		client:         client,
		maxRetries:     maxRetries,
		initialBackoff: defaultInitialBackoff,
	}
}

// WithInitialBackoff returns a copy of the downloader which waits the given
// duration before the first retry.
func (d *Downloader) WithInitialBackoff(backoff time.Duration) *Downloader {
	c := *d
	c.initialBackoff = backoff
	return &c
}

// Download performs a GET request and returns the response if its status code
// is 2xx. Network errors, 429 and 5xx responses are retried with exponential
// backoff. The caller must close the body of the returned response.
func (d *Downloader) Download(ctx context.Context, url string, accept string) (*http.Response, error) {
	backoff := d.initialBackoff

	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[DEBUG] retrying download of %q in %s (attempt %d): %v", url, backoff, attempt, lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		resp, retry, err := d.do(ctx, url, accept)
		if err == nil {
			return resp, nil
		}
		if !retry || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

func (d *Downloader) do(ctx context.Context, url string, accept string) (*http.Response, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, true, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		resp.Body.Close()

		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retry, fmt.Errorf("http error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return resp, false, nil
}
