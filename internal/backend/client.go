package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront-checkout/internal/logger"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const maxResponseBody = 1 << 20 // 1MB

var (
	ErrUnavailable     = errors.New("storefront backend unavailable")
	ErrInvalidResponse = errors.New("invalid response from storefront backend")
)

// Error is a non-2xx reply from the backend. Message is the backend's own
// user-facing message and may be empty.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

// MessageOr returns the backend-provided message carried by err, or fallback
// when there is none.
func MessageOr(err error, fallback string) string {
	var be *Error
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return fallback
}

type response struct {
	status int
	body   []byte
}

// Client talks JSON to the storefront REST backend. Requests are traced
// with otelhttp and guarded by a circuit breaker that opens after repeated
// transport failures or 5xx replies.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*response]
	logger  *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default traced client. Its transport is used
// as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(c *Client) { c.breaker = newBreaker(st, c.logger) }
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
	c.breaker = newBreaker(gobreaker.Settings{
		Name:        "storefront-backend",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}, logger)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newBreaker(st gobreaker.Settings, logger *zap.Logger) *gobreaker.CircuitBreaker[*response] {
	st.IsSuccessful = func(err error) bool {
		if err == nil || errors.Is(err, context.Canceled) {
			return true
		}
		var be *Error
		return errors.As(err, &be) && be.Status < http.StatusInternalServerError
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn("circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}
	return gobreaker.NewCircuitBreaker[*response](st)
}

// Post sends body as JSON to path and decodes a 2xx reply into out, which
// may be nil. Non-2xx replies return *Error.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	log := logger.FromContext(ctx, c.logger).With(zap.String("path", path))
	start := time.Now()

	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.do(ctx, path, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Warn("backend request rejected by circuit breaker")
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		var be *Error
		if errors.As(err, &be) {
			log.Warn("backend server error", zap.Int("status", be.Status))
			return be
		}
		log.Warn("backend request failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	log.Debug("backend request finished", zap.Int("status", resp.status), zap.Duration("duration", time.Since(start)))

	if resp.status < 200 || resp.status > 299 {
		return &Error{Status: resp.status, Message: extractMessage(resp.body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, payload []byte) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	resp := &response{status: res.StatusCode, body: body}
	if res.StatusCode >= http.StatusInternalServerError {
		return resp, &Error{Status: res.StatusCode, Message: extractMessage(body)}
	}
	return resp, nil
}

// extractMessage pulls a user-facing message out of an error body shaped
// like {"message": "..."} or {"error": "..."}.
func extractMessage(body []byte) string {
	var envelope struct {
		Message json.RawMessage `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	for _, raw := range []json.RawMessage{envelope.Message, envelope.Error} {
		var s string
		if len(raw) > 0 && json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
