// Package client talks to the remote App Maker service: project CRUD,
// generation, the runner, logs and problem status.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/protocol"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/retry"
)

// DefaultBaseURL is where the backend listens in a local setup.
const DefaultBaseURL = "http://127.0.0.1:8000"

// ErrOffline is wrapped into errors caused by an unreachable server.
var ErrOffline = errors.New("server is offline")

// APIError is a non-2xx answer from the service.
type APIError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: server returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Detail, e.StatusCode)
}

// AsAPIError checks if an error is an APIError and returns it.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// ObserveFunc receives one sample per HTTP exchange. status is 0 when no
// response was received.
type ObserveFunc func(op string, status int, d time.Duration)

// Client is the HTTP client for the remote service. Reads are retried with
// backoff; mutations are sent once.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config
	logger      *zap.Logger
	observe     ObserveFunc

	mu       sync.RWMutex
	online   bool
	lastSeen time.Time
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
	Logger      *zap.Logger
	Observe     ObserveFunc
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		// Generation calls wait on an LLM.
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Observe == nil {
		cfg.Observe = func(string, int, time.Duration) {}
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
		logger:      cfg.Logger.Named("client"),
		observe:     cfg.Observe,
		online:      true,
	}
	c.retryConfig.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.logger.Debug("retrying request",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return c
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// IsOnline returns true if the last exchange reached the server.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

// LastSeen returns when the server last answered.
func (c *Client) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online != online {
		if online {
			c.logger.Info("server is back online", zap.String("url", c.baseURL))
		} else {
			c.logger.Warn("server is offline", zap.String("url", c.baseURL))
		}
	}
	c.online = online
	if online {
		c.lastSeen = time.Now()
	}
}

// Ping checks if the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, request{op: "ping", method: http.MethodGet, path: "/"})
}

type request struct {
	op         string
	method     string
	path       string
	body       any
	out        any
	idempotent bool
}

func (c *Client) do(ctx context.Context, r request) error {
	cfg := retry.Once()
	if r.idempotent {
		cfg = c.retryConfig
	}
	return retry.Do(ctx, cfg, func() error {
		return c.attempt(ctx, r)
	})
}

func (c *Client) attempt(ctx context.Context, r request) error {
	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", r.op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(r.op, 0, time.Since(start))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.setOnline(false)
		return retry.Retryable(fmt.Errorf("%s: %w: %w", r.op, ErrOffline, err))
	}
	defer resp.Body.Close()
	c.observe(r.op, resp.StatusCode, time.Since(start))
	c.setOnline(true)

	c.logger.Debug("remote call",
		zap.String("op", r.op),
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.String("request_id", requestID),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := decodeAPIError(r.op, resp)
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return retry.Retryable(apiErr)
		}
		return apiErr
	}

	if r.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(r.out); err != nil {
		return fmt.Errorf("%s: decode response: %w", r.op, err)
	}
	return nil
}

// decodeAPIError extracts the FastAPI "detail" field, which is either a
// message or a list of validation errors.
func decodeAPIError(op string, resp *http.Response) *APIError {
	apiErr := &APIError{Op: op, StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(data) == 0 {
		apiErr.Detail = http.StatusText(resp.StatusCode)
		return apiErr
	}

	var body protocol.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || len(body.Detail) == 0 {
		apiErr.Detail = strings.TrimSpace(string(data))
		return apiErr
	}
	var msg string
	if err := json.Unmarshal(body.Detail, &msg); err == nil {
		apiErr.Detail = msg
	} else {
		apiErr.Detail = string(body.Detail)
	}
	return apiErr
}
