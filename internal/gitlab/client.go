package gitlab

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab2dash/internal/metrics"
)

const apiPrefix = "/api/v4/"

// Options contains client configuration
type Options struct {
	BaseURL            string
	Token              string
	InsecureSkipVerify bool
	MaxRetries         int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	Timeout            time.Duration
	MinInterval        time.Duration
	PerMinuteBudget    int
}

// Client issues paginated requests against a GitLab REST API with rate
// limiting, retry/backoff, and error classification. Request never returns
// an error to callers: a permanently failing endpoint degrades to an empty
// result so one bad endpoint cannot abort a whole analysis run.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *RateLimiter
	logger  *zap.Logger
	metrics *metrics.Collector

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	// injectable for tests
	sleep  func(time.Duration)
	jitter func() float64
}

// RequestOptions controls one logical request
type RequestOptions struct {
	Method   string
	Body     any
	AllPages bool
	PerPage  int
	MaxPages int
}

// NewClient creates a new API client. The collector may be nil.
func NewClient(opts Options, logger *zap.Logger, collector *metrics.Collector) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = 200 * time.Millisecond
	}
	if opts.PerMinuteBudget <= 0 {
		opts.PerMinuteBudget = 600
	}

	transport := http.DefaultTransport
	if opts.InsecureSkipVerify {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
	}

	limiter := NewRateLimiter(opts.MinInterval, opts.PerMinuteBudget)
	if collector != nil {
		limiter.onWait = collector.IncRateLimitWait
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		http:       &http.Client{Timeout: opts.Timeout, Transport: transport},
		limiter:    limiter,
		logger:     logger,
		metrics:    collector,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
		sleep:      time.Sleep,
		jitter:     rand.Float64,
	}
}

// Request materializes a logical endpoint request into a flat list of
// decoded JSON items. With AllPages it walks pages until a short page or
// the page ceiling; hitting the ceiling logs a warning and returns the
// partial result. The returned slice is never nil.
func (c *Client) Request(ctx context.Context, endpoint string, opt RequestOptions) []json.RawMessage {
	method := opt.Method
	if method == "" {
		method = http.MethodGet
	}
	perPage := opt.PerPage
	if perPage <= 0 {
		perPage = 100
	}
	maxPages := opt.MaxPages
	if maxPages <= 0 {
		maxPages = 100
	}

	var body []byte
	if opt.Body != nil {
		var err error
		body, err = json.Marshal(opt.Body)
		if err != nil {
			c.logger.Warn("failed to encode request body",
				zap.String("endpoint", endpoint), zap.Error(err))
			return []json.RawMessage{}
		}
	}

	if !opt.AllPages {
		items, _ := c.fetchPage(ctx, method, endpoint, body, 0, 0)
		if items == nil {
			items = []json.RawMessage{}
		}
		return items
	}

	all := []json.RawMessage{}
	for page := 1; ; page++ {
		items, ok := c.fetchPage(ctx, method, endpoint, body, page, perPage)
		all = append(all, items...)
		if !ok || len(items) < perPage {
			break
		}
		if page >= maxPages {
			c.logger.Warn("pagination stopped at page ceiling, result is truncated",
				zap.String("endpoint", endpoint), zap.Int("max_pages", maxPages))
			break
		}
	}
	return all
}

// Fetch decodes the items of a Request into a typed slice. Items that fail
// to decode are dropped with a warning.
func Fetch[T any](ctx context.Context, c *Client, endpoint string, opt RequestOptions) []T {
	items := c.Request(ctx, endpoint, opt)
	out := make([]T, 0, len(items))
	for _, raw := range items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			c.logger.Warn("failed to decode item",
				zap.String("endpoint", endpoint), zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out
}

// TestConnection probes /version. Unlike Request it reports failure, since
// an unreachable instance makes the whole run meaningless.
func (c *Client) TestConnection(ctx context.Context) (*Version, error) {
	u, err := c.buildURL("version", 0, 0)
	if err != nil {
		return nil, err
	}

	status, data, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("connection test failed: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("connection test failed: status %d", status)
	}

	var v Version
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("connection test failed: %w", err)
	}
	return &v, nil
}

// fetchPage runs one page request through the retry policy. page 0 means
// an unpaginated request (no page/per_page parameters). The second return
// is false when pagination must stop: terminal failure, or 404 past the
// first page meaning no more pages.
func (c *Client) fetchPage(ctx context.Context, method, endpoint string, body []byte, page, perPage int) ([]json.RawMessage, bool) {
	u, err := c.buildURL(endpoint, page, perPage)
	if err != nil {
		c.logger.Warn("invalid endpoint", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, false
	}

	attempts := 0
	for {
		attempts++

		status, data, err := c.do(ctx, method, u, body)
		if err != nil {
			c.logger.Warn("request failed",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempts),
				zap.Error(err))
			if ctx.Err() != nil || attempts > c.maxRetries {
				return nil, false
			}
			c.incRetry()
			c.sleep(c.backoff(attempts))
			continue
		}

		switch {
		case status >= 200 && status < 300:
			items, err := decodeItems(data)
			if err != nil {
				c.logger.Warn("failed to decode response",
					zap.String("endpoint", endpoint), zap.Error(err))
				return nil, false
			}
			return items, true

		case status == http.StatusTooManyRequests:
			wait := time.Minute + time.Duration(c.jitter()*float64(30*time.Second))
			c.logger.Warn("rate limited by server, backing off",
				zap.String("endpoint", endpoint),
				zap.Duration("wait", wait))
			c.sleep(wait)
			c.limiter.Reset()
			// Server-imposed wait does not consume a retry attempt.
			attempts--

		case status == http.StatusUnauthorized:
			c.logger.Error("authentication failed, check token",
				zap.String("endpoint", endpoint))
			return nil, false

		case status == http.StatusForbidden:
			c.logger.Error("permission denied",
				zap.String("endpoint", endpoint))
			return nil, false

		case status == http.StatusNotFound:
			if page > 1 {
				return nil, false
			}
			c.logger.Debug("not found", zap.String("endpoint", endpoint))
			return nil, false

		case status >= 500:
			if attempts > c.maxRetries {
				c.logger.Warn("server error, retries exhausted",
					zap.String("endpoint", endpoint),
					zap.Int("status", status),
					zap.Int("attempts", attempts))
				return nil, false
			}
			c.incRetry()
			c.sleep(c.backoff(attempts))

		default:
			c.logger.Warn("unexpected status",
				zap.String("endpoint", endpoint),
				zap.Int("status", status))
			if attempts > c.maxRetries {
				return nil, false
			}
			c.incRetry()
			c.sleep(c.backoff(attempts))
		}
	}
}

// do performs one HTTP attempt, gated by the rate limiter.
func (c *Client) do(ctx context.Context, method string, u *url.URL, body []byte) (int, []byte, error) {
	c.limiter.Wait()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start)

	if c.metrics != nil {
		c.metrics.ObserveRequestLatency(latency)
	}
	if err != nil {
		c.observe("error")
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe("error")
		return 0, nil, err
	}

	c.observe(statusClass(resp.StatusCode))
	return resp.StatusCode, data, nil
}

func (c *Client) buildURL(endpoint string, page, perPage int) (*url.URL, error) {
	u, err := url.Parse(c.baseURL + apiPrefix + strings.TrimPrefix(endpoint, "/"))
	if err != nil {
		return nil, err
	}
	if page > 0 {
		q := u.Query()
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(perPage))
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// backoff computes the delay before retry number attempt, capped at
// maxDelay, with jitter up to 10% of the delay.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			delay = c.maxDelay
			break
		}
	}
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay + time.Duration(c.jitter()*0.1*float64(delay))
}

func (c *Client) observe(statusClass string) {
	if c.metrics != nil {
		c.metrics.IncRequest(statusClass)
	}
}

func (c *Client) incRetry() {
	if c.metrics != nil {
		c.metrics.IncRetry()
	}
}

// decodeItems flattens a JSON response into items: arrays element-wise,
// any other non-empty body as a single item.
func decodeItems(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []json.RawMessage{}, nil
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		if items == nil {
			items = []json.RawMessage{}
		}
		return items, nil
	}
	return []json.RawMessage{json.RawMessage(trimmed)}, nil
}

func statusClass(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
