// Package peer is the HTTP client a master facility uses to reach other
// facilities. Every call is a single attempt bounded by its own timeout;
// failures are logged and reported as an absent result, never as errors.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/carenet/carenet/internal/domain/records"
)

const (
	DefaultHealthTimeout = 2 * time.Second
	DefaultDataTimeout   = 5 * time.Second

	maxErrorBody = 1024
)

// ErrUnreachable classifies every failed peer call: network errors,
// timeouts, non-2xx answers and undecodable bodies.
var ErrUnreachable = errors.New("peer unreachable")

// Health is a peer's answer to GET /health.
type Health struct {
	Status   string `json:"status"`
	Hospital string `json:"hospital"`
}

// CreateResult is a peer's answer to POST /{kind}.
type CreateResult struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// Options tune a Client.
type Options struct {
	HealthTimeout time.Duration
	DataTimeout   time.Duration
	HTTPClient    *http.Client
	Logger        zerolog.Logger
}

// Client talks to one peer facility.
type Client struct {
	baseURL       string
	healthTimeout time.Duration
	dataTimeout   time.Duration
	httpClient    *http.Client
	logger        zerolog.Logger
}

// NewClient returns a client for the peer at baseURL. A trailing slash on
// baseURL is ignored.
func NewClient(baseURL string, opts Options) *Client {
	c := &Client{
		baseURL:       NormalizeURL(baseURL),
		healthTimeout: opts.HealthTimeout,
		dataTimeout:   opts.DataTimeout,
		httpClient:    opts.HTTPClient,
		logger:        opts.Logger.With().Str("peer", NormalizeURL(baseURL)).Logger(),
	}
	if c.healthTimeout <= 0 {
		c.healthTimeout = DefaultHealthTimeout
	}
	if c.dataTimeout <= 0 {
		c.dataTimeout = DefaultDataTimeout
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c
}

// NormalizeURL trims whitespace and trailing slashes.
func NormalizeURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}

// ValidateURL reports whether u is an absolute http(s) URL.
func ValidateURL(u string) error {
	parsed, err := url.Parse(NormalizeURL(u))
	if err != nil {
		return fmt.Errorf("invalid peer url %q: %w", u, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid peer url %q: scheme must be http or https", u)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid peer url %q: missing host", u)
	}
	return nil
}

// BaseURL returns the normalized peer URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CheckHealth calls GET /health. It reports false when the peer is
// unreachable or answers with anything but a decodable 2xx.
func (c *Client) CheckHealth(ctx context.Context) (Health, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		c.warn(err, "health check failed")
		return Health{}, false
	}
	return h, true
}

// List calls GET /{kind}?search=term. Rows keep integer columns as
// json.Number so ids survive decoding intact.
func (c *Client) List(ctx context.Context, kind records.Kind, term string) ([]records.Row, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.dataTimeout)
	defer cancel()

	path := "/" + string(kind)
	if term != "" {
		path += "?search=" + url.QueryEscape(term)
	}
	var rows []records.Row
	if err := c.do(ctx, http.MethodGet, path, nil, &rows); err != nil {
		c.warn(err, "list failed")
		return nil, false
	}
	return rows, true
}

// Create calls POST /{kind} with fields as the JSON body.
func (c *Client) Create(ctx context.Context, kind records.Kind, fields records.Fields) (*CreateResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.dataTimeout)
	defer cancel()

	body, err := json.Marshal(fields)
	if err != nil {
		c.warn(err, "encode create body")
		return nil, false
	}
	var raw map[string]any
	if err := c.do(ctx, http.MethodPost, "/"+string(kind), body, &raw); err != nil {
		c.warn(err, "create failed")
		return nil, false
	}

	res := &CreateResult{}
	if s, ok := raw["status"].(string); ok {
		res.Status = s
	}
	if id, ok := records.Row(raw).ID(kind); ok {
		res.ID = id
	}
	return res, true
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: non-2xx response %d: %s", ErrUnreachable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrUnreachable, method, path, err)
	}
	return nil
}

func (c *Client) warn(err error, msg string) {
	c.logger.Warn().Err(err).Msg(msg)
}
