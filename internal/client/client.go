// Package client is a typed client for the lending API.
//
// Every call reads the access token from the injected tokenstore.Store. A 401
// answer triggers one refresh with the stored refresh token and one retry of
// the call; when the refresh fails the store is cleared and the call fails
// with ErrUnauthorized. Mutations are never retried otherwise. Reads are
// retried with exponential backoff on transient failures.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lendingapi/internal/httpx"
	"lendingapi/internal/tokenstore"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     tokenstore.Store
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	userAgent  string
	logger     *slog.Logger

	// refreshMu serialises refreshes so concurrent 401s rotate only once.
	refreshMu sync.Mutex
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit paces outgoing requests.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithRetries sets how often a failed read is retried and the first delay.
func WithRetries(max int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = max
		c.backoff = backoff
	}
}

// WithLogger logs retries and refreshes at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func New(baseURL string, tokens tokenstore.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		tokens:     tokens,
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		maxRetries: 2,
		backoff:    200 * time.Millisecond,
		userAgent:  "lendctl/1.0",
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success bool                     `json:"success"`
	Data    json.RawMessage          `json:"data"`
	Meta    json.RawMessage          `json:"meta"`
	Error   *httpx.ErrorResponseBody `json:"error"`
}

type call struct {
	method string
	path   string
	query  url.Values
	body   interface{}
	// anonymous calls carry no token and skip the refresh dance.
	anonymous bool
}

// do runs c and decodes the data of the answer into out and its meta into
// meta. Either may be nil.
func (c *Client) do(ctx context.Context, req call, out, meta interface{}) error {
	attempts := 1
	if req.method == http.MethodGet {
		attempts += c.maxRetries
	}

	backoff := c.backoff
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			c.logger.Debug("retrying request", "method", req.method, "path", req.path, "attempt", i+1, "error", err)
			backoff *= 2
		}

		err = c.doAuthenticated(ctx, req, out, meta)
		if !errors.Is(err, ErrTransient) {
			return err
		}
	}
	return err
}

func (c *Client) doAuthenticated(ctx context.Context, req call, out, meta interface{}) error {
	if req.anonymous {
		return c.send(ctx, req, "", out, meta)
	}

	tokens, err := c.tokens.Get(ctx)
	if errors.Is(err, tokenstore.ErrNoTokens) {
		return fmt.Errorf("%w: log in first", ErrUnauthorized)
	}
	if err != nil {
		return err
	}

	err = c.send(ctx, req, tokens.AccessToken, out, meta)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	access, refreshErr := c.refresh(ctx, tokens.AccessToken)
	if refreshErr != nil {
		return refreshErr
	}
	return c.send(ctx, req, access, out, meta)
}

// refresh exchanges the stored refresh token for a new pair. stale is the
// access token the server just rejected; if the store already holds a
// different one, another call refreshed first and that token is used.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	tokens, err := c.tokens.Get(ctx)
	if errors.Is(err, tokenstore.ErrNoTokens) {
		return "", fmt.Errorf("%w: session expired", ErrUnauthorized)
	}
	if err != nil {
		return "", err
	}
	if tokens.AccessToken != stale {
		return tokens.AccessToken, nil
	}
	if tokens.RefreshToken == "" {
		_ = c.tokens.Clear(ctx)
		return "", fmt.Errorf("%w: session expired", ErrUnauthorized)
	}

	c.logger.Debug("access token rejected, refreshing")
	var fresh tokenPair
	err = c.send(ctx, call{
		method:    http.MethodPost,
		path:      "/v1/auth/refresh",
		body:      map[string]string{"refresh_token": tokens.RefreshToken},
		anonymous: true,
	}, "", &fresh, nil)
	if errors.Is(err, ErrTransient) {
		// The refresh token may still be good; keep it for a later try.
		return "", err
	}
	if err != nil {
		_ = c.tokens.Clear(ctx)
		return "", fmt.Errorf("%w: session expired: %v", ErrUnauthorized, err)
	}

	if err := c.tokens.Set(ctx, tokenstore.Tokens{AccessToken: fresh.AccessToken, RefreshToken: fresh.RefreshToken}); err != nil {
		return "", err
	}
	return fresh.AccessToken, nil
}

func (c *Client) send(ctx context.Context, req call, accessToken string, out, meta interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %s %s: %v", ErrTransient, req.method, req.path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("api call", "method", req.method, "path", req.path,
		"status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode), Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		apiErr := &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		var m struct {
			RequestID string `json:"request_id"`
		}
		if len(env.Meta) > 0 && json.Unmarshal(env.Meta, &m) == nil {
			apiErr.RequestID = m.RequestID
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	if meta != nil && len(env.Meta) > 0 {
		if err := json.Unmarshal(env.Meta, meta); err != nil {
			return fmt.Errorf("decode meta: %w", err)
		}
	}
	return nil
}
