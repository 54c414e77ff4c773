package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Doer sends an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// DefaultMaxBody bounds how much of a response body is read.
const DefaultMaxBody int64 = 4 << 20

// Request describes one outbound call.
type Request struct {
	Method string

	// Path is joined to the client's base URL. Absolute URLs (such as Bundle
	// next links) are used as is.
	Path string

	Query url.Values

	// JSON is encoded as the request body when non-nil.
	JSON any

	// Form is encoded as an application/x-www-form-urlencoded body when non-nil.
	Form url.Values

	Header http.Header

	// Bearer sets an Authorization: Bearer header.
	Bearer string

	// BasicUser and BasicPassword set an Authorization: Basic header when
	// BasicUser is non-empty.
	BasicUser     string
	BasicPassword string
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("transport: decode response: %w", err)
	}
	return nil
}

// Client issues requests against a base URL.
type Client struct {
	baseURL   string
	doer      Doer
	userAgent string
	maxBody   int64
	newID     func() string
}

// Option configures a Client.
type Option func(*Client)

// WithDoer sets the HTTP implementation. Default: http.DefaultClient.
func WithDoer(d Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.doer = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMaxBody bounds how many response bytes are read.
func WithMaxBody(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithRequestIDs sets the generator for X-Request-ID values.
func WithRequestIDs(gen func() string) Option {
	return func(c *Client) {
		c.newID = gen
	}
}

// NewClient creates a client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		doer:      http.DefaultClient,
		userAgent: "schedgate",
		maxBody:   DefaultMaxBody,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the root all relative paths are joined to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL resolves a path against the base URL.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if path == "" {
		return c.baseURL
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Do sends the request and reads the response. Any non-2xx status is returned
// as a *StatusError alongside the response.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	req, err := c.build(ctx, r)
	if err != nil {
		return nil, err
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, req.Method, req.URL.Redacted(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &StatusError{
			Method:     req.Method,
			URL:        req.URL.Redacted(),
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}

	return out, nil
}

func (c *Client) build(ctx context.Context, r Request) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	target := c.URL(r.Path)
	if len(r.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + r.Query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case r.Form != nil:
		body = strings.NewReader(r.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case r.JSON != nil:
		data, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, fmt.Errorf("transport: encode request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("transport: create request: %w", err)
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.newID != nil && req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, c.newID())
	}

	switch {
	case r.Bearer != "":
		req.Header.Set("Authorization", "Bearer "+r.Bearer)
	case r.BasicUser != "":
		req.SetBasicAuth(r.BasicUser, r.BasicPassword)
	}

	return req, nil
}
