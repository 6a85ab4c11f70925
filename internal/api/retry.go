package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultMaxRetries is the number of additional attempts after the
	// first failed one.
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay is the backoff unit; attempt n waits
	// base * 2^n before retrying.
	DefaultRetryBaseDelay = 500 * time.Millisecond

	// errorBodyLimit caps how much of an error response body is read
	// into the error message.
	errorBodyLimit = 4 * 1024
)

// SleepFunc pauses between retry attempts. It returns early with the
// context's error if the context is done first. Tests inject a zero-cost
// implementation.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// callOptions adjust retry behavior for a single call.
type callOptions struct {
	noRetryOn404 bool
}

// CallOption configures one API call.
type CallOption func(*callOptions)

// NoRetryOn404 suppresses retries for 404 responses. Used on existence
// checks where "not found" is an expected, meaningful outcome rather than
// a transient condition.
func NoRetryOn404() CallOption {
	return func(o *callOptions) {
		o.noRetryOn404 = true
	}
}

// doRequest issues the request built by build, retrying transient failures
// with exponential backoff. build is called once per attempt so request
// bodies are fresh on every try. On success the caller owns the response
// body. When the retry budget is exhausted the final error is returned,
// annotated with method, path, status and attempt count.
func (c *Client) doRequest(ctx context.Context, method, path string, build func() (*http.Request, error), opts ...CallOption) (*http.Response, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s %s: %w", method, path, ctx.Err())
			}
			if !retryableNetworkError(err) {
				return nil, fmt.Errorf("%s %s: %w", method, path, err)
			}
			lastErr = fmt.Errorf("%s %s (attempt %d of %d): %w", method, path, attempt+1, c.maxRetries+1, err)
		} else {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return resp, nil
			}

			apiErr := &APIError{
				Method:   method,
				Path:     path,
				Status:   resp.StatusCode,
				Message:  readErrorBody(resp.Body),
				Attempts: attempt + 1,
			}
			resp.Body.Close()

			if apiErr.Status == http.StatusNotFound && o.noRetryOn404 {
				return nil, apiErr
			}
			if !apiErr.Retryable() {
				return nil, apiErr
			}
			lastErr = apiErr
		}

		if attempt == c.maxRetries {
			break
		}

		delay := c.retryBaseDelay * (1 << attempt)
		c.logger.Warn("retrying request",
			"method", method,
			"path", path,
			"attempt", attempt+1,
			"delay", delay.String(),
			"error", lastErr)

		if err := c.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, err)
		}
	}

	return nil, lastErr
}

// readErrorBody reads a bounded amount of an error response body for the
// error message, swallowing read failures.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, errorBodyLimit))
	if err != nil {
		return ""
	}
	return string(body)
}
