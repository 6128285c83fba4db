package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"twscraper/pkg/config"
	errs "twscraper/pkg/errors"
	"twscraper/pkg/graphql"
	"twscraper/pkg/logger"
	"twscraper/pkg/ratelimit"
	"twscraper/pkg/retry"
	"twscraper/pkg/storage"
)

// reauthenticationCodes are platform error codes on a 403 that mean the
// session must be re-established.
var reauthenticationCodes = map[int]bool{200: true, 239: true}

// RequestObserver receives one call per HTTP attempt
type RequestObserver interface {
	ObserveRequest(endpoint string, statusCode int, duration time.Duration)
}

// Client talks to the web GraphQL API with a fixed credential set
type Client struct {
	transport Transport
	headers   map[string]string
	baseURL   string
	timeout   time.Duration
	gate      *ratelimit.Gate
	runner    *retry.Runner
	observer  RequestObserver
	entities  storage.EntityStore
	logger    logger.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithTransport replaces the HTTP transport
func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithGate sets the request gate every attempt passes through
func WithGate(g *ratelimit.Gate) Option {
	return func(c *Client) { c.gate = g }
}

// WithRunner replaces the retry runner
func WithRunner(r *retry.Runner) Option {
	return func(c *Client) { c.runner = r }
}

// WithObserver records per-request metrics
func WithObserver(o RequestObserver) Option {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the client logger
func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.logger = log }
}

// NewClient creates a client from the twitter and rate limit settings
func NewClient(tw config.TwitterConfig, rl config.RateLimitConfig, opts ...Option) *Client {
	bearer := tw.BearerToken
	if bearer == "" {
		bearer = DefaultBearerToken
	}
	base := tw.BaseURL
	if base == "" {
		base = BaseURL
	}

	c := &Client{
		transport: NewHTTPTransport(nil),
		headers: map[string]string{
			"user-agent":    tw.UserAgent,
			"authorization": "Bearer " + bearer,
			"x-csrf-token":  tw.CSRFToken,
			"cookie":        fmt.Sprintf("auth_token=%s; ct0=%s", tw.AuthToken, tw.CSRFToken),
		},
		baseURL: base,
		timeout: rl.RequestTimeout,
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runner == nil {
		c.runner = retry.NewRunner(retry.PolicyFromConfig(rl), c.logger)
	}
	return c
}

// BaseURL returns the API host the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetJSON fetches url through the gate and retry machine and parses the body
func (c *Client) GetJSON(ctx context.Context, endpoint, url string) (graphql.Node, error) {
	var body []byte
	err := c.runner.Run(ctx, endpoint, func(ctx context.Context, attempt int) error {
		resp, err := c.attempt(ctx, endpoint, url, c.headers)
		if err != nil {
			return err
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, err
	}

	node, err := graphql.Parse(body)
	if err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"endpoint":     endpoint,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return nil, errs.Upstream("error decoding response into JSON: %v", err).WithCode(http.StatusOK).WithOrigin(endpoint)
	}
	return node, nil
}

// Download fetches a media file. Media hosts take no API credentials.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	headers := map[string]string{"user-agent": c.headers["user-agent"]}
	err := c.runner.Run(ctx, "download", func(ctx context.Context, attempt int) error {
		resp, err := c.attempt(ctx, "download", url, headers)
		if err != nil {
			return err
		}
		body = resp.Body
		return nil
	})
	return body, err
}

// attempt performs one gated request and classifies the outcome
func (c *Client) attempt(ctx context.Context, endpoint, url string, headers map[string]string) (*Response, error) {
	if c.gate != nil {
		if err := c.gate.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"endpoint": endpoint,
		"url":      url,
	})

	start := time.Now()
	resp, err := c.transport.Do(ctx, Request{URL: url, Headers: headers, Timeout: c.timeout})
	duration := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.observe(endpoint, 0, duration)
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"endpoint": endpoint,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Network(err).WithOrigin(endpoint)
	}

	c.observe(endpoint, resp.StatusCode, duration)
	logger.LogRequest(c.logger, endpoint, resp.StatusCode, duration)

	if err := checkResponseStatus(resp); err != nil {
		return nil, err.WithOrigin(endpoint)
	}
	return resp, nil
}

func (c *Client) observe(endpoint string, status int, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(endpoint, status, d)
	}
}

// checkResponseStatus maps a response to its error kind, or nil for 200
func checkResponseStatus(resp *Response) *errs.Error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case isReauthentication(resp):
		return errs.New(errs.ErrorTypeAuth, "should not authenticate with user auth").WithCode(resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return errs.New(errs.ErrorTypeRateLimit, "HTTP 429: Too many requests - rate limit exceeded").WithCode(resp.StatusCode)
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return errs.New(errs.ErrorTypeServerError, "HTTP %d: Server error", resp.StatusCode).WithCode(resp.StatusCode)
	default:
		return errs.Upstream("HTTP %d - %s", resp.StatusCode, reason(resp)).WithCode(resp.StatusCode)
	}
}

// isReauthentication detects a revoked or invalid session: any 401, or a
// 403 whose first error code is 200 or 239. The errors field is sometimes
// a JSON-encoded string rather than a list.
func isReauthentication(resp *Response) bool {
	if resp.StatusCode == http.StatusUnauthorized {
		return true
	}
	if resp.StatusCode != http.StatusForbidden {
		return false
	}

	var body struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil || len(body.Errors) == 0 {
		return false
	}

	type apiError struct {
		Code int `json:"code"`
	}
	var list []apiError
	if err := json.Unmarshal(body.Errors, &list); err == nil {
		return len(list) > 0 && reauthenticationCodes[list[0].Code]
	}

	var encoded string
	if err := json.Unmarshal(body.Errors, &encoded); err != nil {
		return false
	}
	var single apiError
	if err := json.Unmarshal([]byte(encoded), &single); err != nil {
		return false
	}
	return reauthenticationCodes[single.Code]
}

func reason(resp *Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	if resp.Status != "" {
		return resp.Status
	}
	return "unknown status"
}

// IsAuthFailure reports whether err means the credentials were rejected
func IsAuthFailure(err error) bool {
	var e *errs.Error
	return errors.As(err, &e) && e.Type == errs.ErrorTypeAuth
}
