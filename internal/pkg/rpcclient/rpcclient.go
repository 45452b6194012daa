// Package rpcclient is the shared HTTP client for the three external
// processors named in spec.md §6 (office converter, PDF extractor, web
// scraper): a plain net/http client wrapped in a bounded retry per
// conf.RPCConfig, so none of the three callers reimplement backoff.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/docboxhq/docbox/internal/conf"
)

// Client is a retrying JSON/binary POST client bound to one processor's
// base URL.
type Client struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	maxRetries uint64
}

// New builds a Client from the RPCConfig section naming one of the three
// external processors.
func New(cfg conf.RPCConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxRetries: uint64(maxRetries),
	}
}

// PostBinary sends body as a POST with the given Content-Type (used for
// office bytes→PDF and PDF bytes→extraction calls) and returns the raw
// response body, retrying transient failures with fibonacci backoff.
func (c *Client) PostBinary(ctx context.Context, path string, contentType string, body []byte) ([]byte, error) {
	var result []byte

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewFibonacci(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("call %s: %w", path, err))
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read response from %s: %w", path, err))
		}

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("%s returned %d", path, resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, respBody)
		}

		result = respBody
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get issues a retrying GET against path and returns the raw response
// body, used by the web-scraper client's "GET url → metadata" call.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	var result []byte

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewFibonacci(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("call %s: %w", path, err))
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read response from %s: %w", path, err))
		}

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("%s returned %d", path, resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, respBody)
		}

		result = respBody
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PostJSON sends in as a JSON body and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	respBody, err := c.PostBinary(ctx, path, "application/json", payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}
