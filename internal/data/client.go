package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// Client fetches JSON documents from one HTTP API with retries and an
// optional response cache.
type Client struct {
	BaseURL string
	Header  http.Header

	http  *retryablehttp.Client
	cache *Cache
	log   *logrus.Entry
}

type ClientOption func(*Client)

// WithCache caches successful response bodies.
func WithCache(c *Cache) ClientOption {
	return func(cl *Client) { cl.cache = c }
}

// WithRetries sets the retry budget. Zero disables retries.
func WithRetries(max int, waitMin, waitMax time.Duration) ClientOption {
	return func(cl *Client) {
		cl.http.RetryMax = max
		cl.http.RetryWaitMin = waitMin
		cl.http.RetryWaitMax = waitMax
	}
}

func WithLogger(l *logrus.Entry) ClientOption {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = 30 * time.Second
	// Hand back the final response so status codes map to APIError.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		BaseURL: baseURL,
		Header:  http.Header{"Accept": []string{"application/json"}},
		http:    rc,
		log:     logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.WithField("component", "data")
	rc.Logger = leveledLogger{c.log}
	return c
}

// APIError is a non-success response from an upstream API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter string // For rate limit errors
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Message)
}

func statusError(resp *http.Response) *APIError {
	e := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		e.Code = "UNAUTHORIZED"
		e.Message = "invalid API key or insufficient permissions"
	case http.StatusTooManyRequests:
		e.Code = "RATE_LIMIT_EXCEEDED"
		e.RetryAfter = resp.Header.Get("Retry-After")
		e.Message = fmt.Sprintf("rate limit exceeded, retry after %q", e.RetryAfter)
	case http.StatusNotFound:
		e.Code = "NOT_FOUND"
	default:
		e.Code = "API_ERROR"
	}
	return e
}

// GetJSON issues GET BaseURL+path?query and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	u.RawQuery = query.Encode()
	key := CacheKey(u.String())

	if c.cache != nil {
		if body, ok := c.cache.Get(key); ok {
			c.log.WithField("path", u.Path).Debug("cache hit")
			return json.Unmarshal(body, out)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.Header {
		req.Header[k] = v
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("GET %s: %w", u.Path, err)
	}
	defer resp.Body.Close()
	c.log.WithFields(logrus.Fields{
		"path":     u.Path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("response")

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if c.cache != nil {
		c.cache.Set(key, body)
	}
	return nil
}

// leveledLogger adapts logrus to retryablehttp.LeveledLogger.
type leveledLogger struct {
	e *logrus.Entry
}

func (l leveledLogger) fields(kv []interface{}) *logrus.Entry {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return l.e.WithFields(f)
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.fields(kv).Error(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.fields(kv).Warn(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.fields(kv).Debug(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.fields(kv).Debug(msg) }
