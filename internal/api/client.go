// Package api provides the HTTP client for the Sprites sandbox API:
// sprite and checkpoint CRUD, checkpoint restore, and command execution.
// Transient failures are retried with exponential backoff; long-running
// operations are consumed as NDJSON progress streams.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spritestep/spritestep/internal/logging"
)

// DefaultBaseURL points at the production Sprites API endpoint.
const DefaultBaseURL = "https://api.sprites.dev/v1"

// Client is an authenticated Sprites API client. The bearer token is held
// privately and never logged; the CLI layer registers it with the Actions
// log-masking mechanism before any request is made.
type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	maxRetries     int
	retryBaseDelay time.Duration
	sleep          SleepFunc
	logger         *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithMaxRetries sets how many additional attempts follow a transient
// failure.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryBaseDelay sets the backoff unit between attempts.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = d
	}
}

// WithSleep injects the delay primitive used between retries. Tests pass a
// no-op sleep to exercise the retry loop without waiting.
func WithSleep(sleep SleepFunc) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// WithLogger sets the logger for retry warnings and stream progress.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client for the given bearer token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		httpClient: &http.Client{
			// Per-call deadlines come from the caller's context; a client
			// timeout would kill long-running streams.
			Timeout: 0,
		},
		maxRetries:     DefaultMaxRetries,
		retryBaseDelay: DefaultRetryBaseDelay,
		sleep:          defaultSleep,
		logger:         logging.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetSprite fetches a sprite by name. Pass NoRetryOn404 when "not found"
// is an expected outcome; check it with errors.Is(err, ErrNotFound).
func (c *Client) GetSprite(ctx context.Context, name string, opts ...CallOption) (*Sprite, error) {
	var sprite Sprite
	path := "/sprites/" + url.PathEscape(name)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &sprite, opts...); err != nil {
		return nil, err
	}
	return &sprite, nil
}

// CreateSprite creates a sprite with the given name.
func (c *Client) CreateSprite(ctx context.Context, name string) (*Sprite, error) {
	var sprite Sprite
	if err := c.doJSON(ctx, http.MethodPost, "/sprites", createSpriteRequest{Name: name}, &sprite); err != nil {
		return nil, err
	}
	return &sprite, nil
}

// CreateOrGetSprite ensures a sprite with the given name exists and
// returns its descriptor. It is the idempotent primitive rerun-safety
// rests on: repeated or concurrent invocation with the same name never
// errors and never creates duplicates. A create that loses the
// name-uniqueness race to a concurrent attempt falls back to fetching the
// winner's sprite.
func (c *Client) CreateOrGetSprite(ctx context.Context, name string) (*Sprite, error) {
	sprite, err := c.GetSprite(ctx, name, NoRetryOn404())
	if err == nil {
		return sprite, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	sprite, err = c.CreateSprite(ctx, name)
	if err == nil {
		return sprite, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		return c.GetSprite(ctx, name)
	}
	return nil, err
}

// DeleteSprite deletes a sprite by name.
func (c *Client) DeleteSprite(ctx context.Context, name string) error {
	path := "/sprites/" + url.PathEscape(name)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// ListSprites fetches one page of sprites, optionally filtered by name
// prefix. Pass the previous page's NextContinuationToken to continue.
func (c *Client) ListSprites(ctx context.Context, prefix, continuationToken string) (*SpriteList, error) {
	query := url.Values{}
	if prefix != "" {
		query.Set("prefix", prefix)
	}
	if continuationToken != "" {
		query.Set("continuation_token", continuationToken)
	}

	path := "/sprites"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var list SpriteList
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ListAllSprites enumerates every sprite matching the prefix, following
// continuation tokens until the listing reports no more pages.
func (c *Client) ListAllSprites(ctx context.Context, prefix string) ([]*Sprite, error) {
	var all []*Sprite
	token := ""

	for {
		page, err := c.ListSprites(ctx, prefix, token)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Sprites...)

		if !page.HasMore {
			return all, nil
		}
		token = page.NextContinuationToken
	}
}

// ListCheckpoints fetches all checkpoints of a sprite, in the API's
// creation order.
func (c *Client) ListCheckpoints(ctx context.Context, spriteName string) ([]*Checkpoint, error) {
	var checkpoints []*Checkpoint
	path := "/sprites/" + url.PathEscape(spriteName) + "/checkpoints"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &checkpoints); err != nil {
		return nil, err
	}
	return checkpoints, nil
}

// GetCheckpoint fetches a single checkpoint by id.
func (c *Client) GetCheckpoint(ctx context.Context, spriteName, id string, opts ...CallOption) (*Checkpoint, error) {
	var checkpoint Checkpoint
	path := "/sprites/" + url.PathEscape(spriteName) + "/checkpoints/" + url.PathEscape(id)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &checkpoint, opts...); err != nil {
		return nil, err
	}
	return &checkpoint, nil
}

// doJSON performs a request with a JSON body and decodes a JSON response
// into out (which may be nil for empty responses).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any, opts ...CallOption) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	resp, err := c.doRequest(ctx, method, path, func() (*http.Request, error) {
		return c.newRequest(ctx, method, path, payload)
	}, opts...)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("failed to decode response: %v", err),
		}
	}
	return nil
}

// newRequest builds an authenticated request. Called once per attempt so
// the body reader is fresh each time.
func (c *Client) newRequest(ctx context.Context, method, path string, payload []byte) (*http.Request, error) {
	var body *bytes.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
