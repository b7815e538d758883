// Package portal implements the student portal API client: weekly report
// submission and retrieval, and curriculum release lookup.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roboxon/student-app/internal/domain/curriculum"
	"github.com/roboxon/student-app/internal/domain/report"
	"github.com/roboxon/student-app/internal/domain/shared"
	"github.com/roboxon/student-app/internal/domain/student"
	"github.com/roboxon/student-app/pkg/circuitbreaker"
	"github.com/roboxon/student-app/pkg/logger"
	"github.com/roboxon/student-app/pkg/metrics"
	"github.com/roboxon/student-app/pkg/timeutil"
)

// maxBodySize caps how much of a response is read.
const maxBodySize = 4 << 20

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the portal client.
type ClientConfig struct {
	// BaseURL is the portal base URL, without a trailing slash.
	BaseURL string

	// Timeout is the HTTP client timeout. Callers usually bound each call
	// with a shorter context deadline.
	Timeout time.Duration

	// BreakerThreshold is the number of consecutive failures that opens the
	// circuit. Zero disables the breaker.
	BreakerThreshold int

	// BreakerTimeout is how long the circuit stays open.
	BreakerTimeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:          baseURL,
		Timeout:          30 * time.Second,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
		UserAgent:        "reportctl",
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to the student portal. It implements report.RemoteGateway
// and curriculum.Gateway.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	tokens     student.TokenProvider
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logger.Logger
}

var (
	_ report.RemoteGateway = (*Client)(nil)
	_ curriculum.Gateway   = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a portal client. tokens authenticates every request.
func NewClient(config ClientConfig, tokens student.TokenProvider, opts ...Option) *Client {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		tokens:     tokens,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("portal"))

	if config.BreakerThreshold > 0 {
		c.breaker = circuitbreaker.PortalBreaker(
			config.BreakerThreshold,
			config.BreakerTimeout,
			shared.IsRetryable,
			func(name string, from, to circuitbreaker.State) {
				c.logger.Warn("circuit state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			},
		)
	}
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORT OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Submit sends a weekly report. The week start travels in the X-Week-Start
// header and the Idempotency-Key is derived from the payload, so a retried
// submission of the same content carries the same key.
func (c *Client) Submit(ctx context.Context, doc *report.WeeklyReportRecord) error {
	const op = "submit_report"
	if doc == nil {
		return shared.NewDomainError("portal", op, shared.ErrValidation, "nil report")
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	headers := http.Header{}
	headers.Set("X-Week-Start", timeutil.FormatDateStr(doc.WeekStart))
	headers.Set("Idempotency-Key", IdempotencyKey(doc.Key(), body))

	var ack APIResponse[submitAck]
	return c.doRequest(ctx, op, http.MethodPost, "/api/v1/reports/weekly", headers, body, &ack)
}

// Fetch returns the portal's copy of an ISO week. A missing report yields
// an error matching shared.ErrNotFound.
func (c *Client) Fetch(ctx context.Context, studentID string, year, week int) (*report.WeeklyReportRecord, error) {
	const op = "fetch_report"
	path := fmt.Sprintf("/api/v1/reports/weekly/%s/%d/%d", url.PathEscape(studentID), year, week)

	var response APIResponse[report.WeeklyReportRecord]
	if err := c.doRequest(ctx, op, http.MethodGet, path, nil, nil, &response); err != nil {
		return nil, err
	}
	if response.Data == nil {
		return nil, &shared.RemoteError{Operation: op, StatusCode: http.StatusNotFound, Message: "empty report"}
	}
	return response.Data, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CURRICULUM OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FetchRelease fetches a curriculum release. The envelope is returned as
// sent; callers decide whether it is usable.
func (c *Client) FetchRelease(ctx context.Context, releaseID int64) (*curriculum.Envelope, error) {
	path := "/api/v1/releases/" + strconv.FormatInt(releaseID, 10)

	var env curriculum.Envelope
	if err := c.doRequest(ctx, "fetch_release", http.MethodGet, path, nil, nil, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// IdempotencyKey derives a stable key from a report key and its payload.
func IdempotencyKey(key report.Key, payload []byte) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, append([]byte(key.String()+"|"), payload...)).String()
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest authenticates and runs one request through the circuit breaker.
// Every failure other than a missing token is a *shared.RemoteError.
func (c *Client) doRequest(ctx context.Context, op, method, path string, headers http.Header, body []byte, result interface{}) (err error) {
	started := time.Now()
	defer func() { metrics.ObserveRemote(op, started, err) }()

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		if shared.IsAuth(err) {
			return err
		}
		return shared.WrapError("portal", op, shared.ErrAuth, "access token unavailable", err)
	}

	call := func(ctx context.Context) error {
		return c.doSingleRequest(ctx, op, method, path, token, headers, body, result)
	}
	if c.breaker == nil {
		err = call(ctx)
	} else {
		err = c.breaker.Execute(ctx, call)
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			err = &shared.RemoteError{Operation: op, Err: err}
		}
	}

	if err != nil {
		c.logger.Debug("portal request failed",
			logger.Operation(op),
			logger.Latency(time.Since(started)),
			logger.Err(err),
		)
	}
	return err
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, op, method, path, token string, headers http.Header, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bodyReader)
	if err != nil {
		return &shared.RemoteError{Operation: op, Err: fmt.Errorf("create request: %w", err)}
	}

	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &shared.RemoteError{Operation: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &shared.RemoteError{Operation: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug("portal response",
		logger.Operation(op),
		logger.HTTPStatus(resp.StatusCode),
		logger.String("method", method),
		logger.String("path", path),
	)

	if resp.StatusCode >= 400 {
		msg := errorMessage(respBody)
		if resp.StatusCode == http.StatusTooManyRequests {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				msg = strings.TrimSpace(msg + " (retry after " + ra + "s)")
			}
		}
		return &shared.RemoteError{Operation: op, StatusCode: resp.StatusCode, Message: msg}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &shared.RemoteError{Operation: op, StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
		}
	}
	return nil
}
