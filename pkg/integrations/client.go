package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/shelfcache/pkg/buildinfo"
	errs "github.com/matzehuels/shelfcache/pkg/errors"
	"github.com/matzehuels/shelfcache/pkg/observability"
)

// maxBodySize caps how much of an upstream response is read.
const maxBodySize = 8 << 20

// snippetSize is how much of a malformed body is logged for diagnosis.
const snippetSize = 256

// Client issues single upstream calls and classifies their outcome.
// It does not retry or cache; wrap calls in [httputil.Policy] for retries and
// in a tiered.Manager for caching.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	http    *http.Client
	headers map[string]string
	logger  *log.Logger
}

// NewClient creates a Client that sends headers with every request.
// Pass nil for httpClient to use [NewHTTPClient], nil for headers if no
// default headers are needed, and nil for logger to use log.Default().
func NewClient(httpClient *http.Client, headers map[string]string, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		http:    httpClient,
		headers: headers,
		logger:  logger,
	}
}

// Request describes one upstream call.
type Request struct {
	Method  string            // Defaults to GET
	URL     string            // Absolute URL
	Header  map[string]string // Merged over the client's default headers
	Body    any               // JSON-encoded when non-nil
	Timeout time.Duration     // Per-call timeout; 0 relies on ctx alone
}

// validator is implemented by response structs that check their own shape.
type validator interface {
	Validate() error
}

// Do performs req and JSON-decodes a successful response into v.
//
// When req.Timeout is set the call runs under context.WithTimeout, so a slow
// upstream has its request cancelled and its connection released rather than
// merely abandoned.
//
// Outcomes:
//   - nil: 2xx, application/json, body decoded (and validated if v implements Validate)
//   - TRANSIENT_ERROR: transport failure, timeout, 5xx, or 429 (wrapping [errs.RateLimitedError])
//   - NOT_FOUND: 404
//   - CLIENT_ERROR: any other 4xx
//   - MALFORMED_RESPONSE: wrong content type, unparsable body, failed validation
func (c *Client) Do(ctx context.Context, req Request, v any) error {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return errs.Wrap(errs.ErrCodeInvalidInput, err, "build request")
	}

	hooks := observability.HTTP()
	host, path := httpReq.URL.Host, httpReq.URL.Path
	hooks.OnRequest(ctx, httpReq.Method, host, path)
	start := time.Now()

	resp, err := c.http.Do(httpReq)
	if err != nil {
		hooks.OnError(ctx, httpReq.Method, host, path, err)
		return errs.Wrap(errs.ErrCodeTransient, err, "%s %s", httpReq.Method, host)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	hooks.OnResponse(ctx, httpReq.Method, host, path, resp.StatusCode, time.Since(start))
	if err != nil {
		return errs.Wrap(errs.ErrCodeTransient, err, "read %s response", host)
	}

	if err := checkStatus(resp); err != nil {
		return err
	}
	if !isJSON(resp.Header.Get("Content-Type")) {
		c.logMalformed(req.URL, resp.StatusCode, "unexpected content type", body)
		return errs.New(errs.ErrCodeMalformed, "%s returned content type %q", host, resp.Header.Get("Content-Type"))
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		c.logMalformed(req.URL, resp.StatusCode, "undecodable body", body)
		return errs.Wrap(errs.ErrCodeMalformed, err, "decode %s response", host)
	}
	if val, ok := v.(validator); ok {
		if err := val.Validate(); err != nil {
			c.logMalformed(req.URL, resp.StatusCode, "schema validation failed", body)
			return errs.Wrap(errs.ErrCodeMalformed, err, "validate %s response", host)
		}
	}
	return nil
}

// Get performs an HTTP GET request and JSON-decodes the response into v.
func (c *Client) Get(ctx context.Context, url string, v any) error {
	return c.Do(ctx, Request{URL: url}, v)
}

// PostJSON performs an HTTP POST with a JSON body and decodes the response into v.
func (c *Client) PostJSON(ctx context.Context, url string, body, v any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, URL: url, Body: body}, v)
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", buildinfo.UserAgent())
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (c *Client) logMalformed(url string, status int, reason string, body []byte) {
	c.logger.Warn("malformed upstream response",
		"url", url,
		"status", status,
		"reason", reason,
		"snippet", snippet(body),
	)
}

func checkStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		rl := &errs.RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
		return errs.Wrap(errs.ErrCodeTransient, rl, "status %d", code)
	case code == http.StatusNotFound:
		return errs.New(errs.ErrCodeNotFound, "status %d", code)
	case code >= 500:
		return errs.New(errs.ErrCodeTransient, "status %d", code)
	case code >= 400:
		return errs.New(errs.ErrCodeClient, "status %d", code)
	default:
		return errs.New(errs.ErrCodeMalformed, "unexpected status %d", code)
	}
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func parseRetryAfter(v string) int {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return secs
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return int(d.Round(time.Second) / time.Second)
		}
	}
	return 0
}

func snippet(body []byte) string {
	if len(body) > snippetSize {
		return fmt.Sprintf("%s…", body[:snippetSize])
	}
	return string(body)
}
