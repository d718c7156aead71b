package gateway

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
	"time"

	"partner-portal/internal/metrics"
)

// Credentials resolves the bearer token for one outbound call.
type Credentials interface {
	Token(ctx context.Context) (string, error)
}

// CookieSource is implemented by credentials that also carry backend cookies.
type CookieSource interface {
	BackendCookies() []*http.Cookie
}

// Bearer is a fixed caller-supplied token.
type Bearer string

func (b Bearer) Token(context.Context) (string, error) { return string(b), nil }

// Client is the shared, goroutine-safe transport to the backend API.
type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Client) { c.metrics = m } }

// WithTimeout sets the default per-call timeout. Zero leaves calls bounded only by ctx.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{},
		log:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.base }

// With binds a credential source. A nil source sends no bearer.
func (c *Client) With(creds Credentials) *Gateway {
	return &Gateway{client: c, creds: creds}
}

// Gateway is a Client bound to the credentials of one caller.
type Gateway struct {
	client *Client
	creds  Credentials
}

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header

	// At most one of JSON, Form and Body is used.
	JSON        any
	Form        url.Values
	Body        io.Reader
	ContentType string

	// Anonymous skips the session bearer and cookies.
	Anonymous bool
	// Timeout overrides the client default for this call.
	Timeout time.Duration
}

// Do issues req and decodes a 2xx JSON body into out (when non-nil).
// It never clears the session, redirects or retries.
func (g *Gateway) Do(ctx context.Context, req Request, out any) error {
	c := g.client
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	// where is the URL without its query; query values may carry user text and are
	// kept out of logs and errors.
	where := c.base + "/" + strings.TrimLeft(req.Path, "/")
	u := where
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return fmt.Errorf("gateway: encode %s %s: %w", method, where, err)
	}

	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("gateway: build %s %s: %w", method, where, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Requested-With", "XMLHttpRequest")

	if !req.Anonymous && g.creds != nil {
		if httpReq.Header.Get("Authorization") == "" {
			tok, err := g.creds.Token(ctx)
			if err != nil {
				return fmt.Errorf("gateway: resolve token: %w", err)
			}
			if tok != "" {
				httpReq.Header.Set("Authorization", "Bearer "+tok)
			}
		}
		if cs, ok := g.creds.(CookieSource); ok {
			for _, ck := range cs.BackendCookies() {
				httpReq.AddCookie(ck)
			}
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = where
		}
		c.metrics.ObserveBackend(method, 0, time.Since(start))
		c.log.Warn("backend call failed", "method", method, "url", where, "error", err)
		return &TransportError{Method: method, URL: where, Err: err}
	}
	defer resp.Body.Close()
	c.metrics.ObserveBackend(method, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBody))
		c.log.Warn("backend call rejected", "method", method, "url", where, "status", resp.StatusCode)
		return &StatusError{Status: resp.StatusCode, Method: method, URL: where, Body: string(snippet)}
	}
	c.log.Debug("backend call", "method", method, "url", where, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: method, URL: where, Err: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gateway: decode %s %s: %w", method, where, err)
	}
	return nil
}

func encodeBody(req Request) (io.Reader, string, error) {
	n := 0
	for _, set := range []bool{req.JSON != nil, req.Form != nil, req.Body != nil} {
		if set {
			n++
		}
	}
	if n > 1 {
		return nil, "", errors.New("only one of JSON, Form and Body may be set")
	}
	switch {
	case req.JSON != nil:
		b, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(b), "application/json", nil
	case req.Form != nil:
		return strings.NewReader(req.Form.Encode()), "application/x-www-form-urlencoded", nil
	case req.Body != nil:
		return req.Body, req.ContentType, nil
	}
	return nil, "", nil
}
